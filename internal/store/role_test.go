package store

import "testing"

func TestRoleOrdering(t *testing.T) {
	order := []Role{
		RoleLeft, RoleBanned, RoleGuest, RoleMember,
		RoleAdminMsg, RoleAdminBan, RoleAdminAdmin, RoleAdmin, RoleCreator,
	}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Fatalf("%v is not below %v", order[i-1], order[i])
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		allowed  bool
	}{
		{RoleMember, RoleMember, true},
		{RoleCreator, RoleAdminBan, true},
		{RoleGuest, RoleMember, false},
		{RoleAdminMsg, RoleAdminBan, false},
		{RoleAdmin, RoleCreator, false},
	}
	for _, tt := range tests {
		m := &Member{Role: tt.role}
		err := m.Validate(tt.required)
		if (err == nil) != tt.allowed {
			t.Errorf("Validate(%v required %v): allowed = %v, want %v", tt.role, tt.required, err == nil, tt.allowed)
		}
		if err != nil {
			oe, ok := AsOperationError(err)
			if !ok || oe.Reason != "permission denied" {
				t.Errorf("unexpected error %v", err)
			}
		}
	}
}

func TestIsBanned(t *testing.T) {
	if !(&Member{Role: RoleBanned}).IsBanned() {
		t.Error("banned member not detected")
	}
	if (&Member{Role: RoleLeft}).IsBanned() {
		t.Error("left member reported banned")
	}
}
