package mask

// DefaultUniverse is the built-in emoji universe a group draws masks
// from when its configuration does not provide its own list.
var DefaultUniverse = []string{
	"😀", "😎", "🤖", "👻", "🎃", "🦊", "🐱", "🐶", "🐼", "🐸",
	"🐵", "🦁", "🐯", "🐨", "🐰", "🦝", "🐻", "🐷", "🐮", "🐔",
	"🐧", "🐦", "🦅", "🦉", "🦇", "🐺", "🐗", "🐴", "🦄", "🐝",
	"🐛", "🦋", "🐌", "🐞", "🐜", "🦗", "🕷", "🦂", "🐢", "🐍",
	"🦎", "🦖", "🦕", "🐙", "🦑", "🦐", "🦀", "🐡", "🐠", "🐟",
	"🐬", "🐳", "🐋", "🦈", "🐊", "🐅", "🐆", "🦓", "🦍", "🐘",
	"🦏", "🐪", "🐫", "🦒", "🐃", "🐂", "🐄", "🐎", "🐖", "🐏",
	"🐑", "🐐", "🦌", "🐕", "🐩", "🐈", "🐓", "🦃", "🕊", "🐇",
	"🐁", "🐀", "🐿", "🦔", "🐉", "🦚", "🦜", "🦢", "🦩", "🦥",
}
