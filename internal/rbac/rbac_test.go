package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer write", role: RoleViewer, action: ActionWrite, allow: false},
		{name: "editor write", role: RoleEditor, action: ActionWrite, allow: true},
		{name: "editor admin", role: RoleEditor, action: ActionAdmin, allow: false},
		{name: "owner admin", role: RoleOwner, action: ActionAdmin, allow: true},
		{name: "non-member read", role: RoleNone, action: ActionRead, allow: false},
		{name: "owner unknown action", role: RoleOwner, action: "delete-everything", allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("editor") != RoleEditor || Normalize("admin") != RoleNone || Normalize("") != RoleNone {
		t.Fatal("unexpected normalization")
	}
}

func TestAssignable(t *testing.T) {
	for role, want := range map[string]bool{"viewer": true, "editor": true, "owner": false, "superuser": false} {
		if got := Assignable(role); got != want {
			t.Errorf("Assignable(%q) = %v, want %v", role, got, want)
		}
	}
}
