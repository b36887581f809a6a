package domain

import "testing"

func TestUser_Validate(t *testing.T) {
	valid := func() *User {
		return &User{Email: "a@b.c", OrgID: "org", PasswordHash: "$2a$...", Role: RoleMember}
	}
	u := valid()
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u.Status != UserStatusActive {
		t.Errorf("Status = %q, want active default", u.Status)
	}

	for name, mutate := range map[string]func(*User){
		"no email": func(u *User) { u.Email = "" },
		"no org":   func(u *User) { u.OrgID = "" },
		"no hash":  func(u *User) { u.PasswordHash = "" },
		"bad role": func(u *User) { u.Role = "root" },
	} {
		u := valid()
		mutate(u)
		if err := u.Validate(); err == nil {
			t.Errorf("%s: Validate should fail", name)
		}
	}
}

func TestUser_Principal(t *testing.T) {
	u := &User{ID: "u1", Email: "a@b.c", OrgID: "o1", Role: RoleAdmin, Status: UserStatusActive}
	p := u.Principal()
	if p.ID != "u1" || p.Email != "a@b.c" || p.OrgID != "o1" || p.Role != "admin" {
		t.Errorf("Principal = %+v", p)
	}
	if !u.Active() {
		t.Error("active user should be Active")
	}
	u.Status = UserStatusDisabled
	if u.Active() {
		t.Error("disabled user should not be Active")
	}
	var nilUser *User
	if nilUser.Active() {
		t.Error("nil user should not be Active")
	}
}
