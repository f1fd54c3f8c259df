package lkcosmetics

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/permission"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/persist"
)

var _ permission.Subject = (*User)(nil)

func TestWireUserTransform(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantFirst string
		wantLast  string
		wantRoles []string
	}{
		{
			name:      "full name split on first space",
			body:      `{"id":1,"matricule":"EMP-1","full_name":"Amina Ben Ali","role":"Admin"}`,
			wantFirst: "Amina",
			wantLast:  "Ben Ali",
			wantRoles: []string{"Admin"},
		},
		{
			name:      "single word name",
			body:      `{"id":1,"matricule":"EMP-1","full_name":"Amina","role":"Manager"}`,
			wantFirst: "Amina",
			wantLast:  "",
			wantRoles: []string{"Manager"},
		},
		{
			name:      "no role",
			body:      `{"id":1,"matricule":"EMP-1","full_name":""}`,
			wantRoles: []string{},
		},
		{
			name:      "explicit names win",
			body:      `{"id":1,"full_name":"A B","first_name":"Amina","last_name":"Ben Ali","role":"Admin","roles":["Admin","Auditor"]}`,
			wantFirst: "Amina",
			wantLast:  "Ben Ali",
			wantRoles: []string{"Admin", "Auditor"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w wireUser
			if err := json.Unmarshal([]byte(tt.body), &w); err != nil {
				t.Fatalf("decode: %v", err)
			}
			u := w.user()
			if u.FirstName != tt.wantFirst || u.LastName != tt.wantLast {
				t.Fatalf("names: got %q %q", u.FirstName, u.LastName)
			}
			if strings.Join(u.Roles, ",") != strings.Join(tt.wantRoles, ",") {
				t.Fatalf("roles: got %v want %v", u.Roles, tt.wantRoles)
			}
		})
	}
}

func TestUserRecordRoundTripDerivesRoles(t *testing.T) {
	u := &User{ID: 9, Matricule: "EMP-9", FullName: "Sami Trabelsi", Role: "SuperAdmin", Roles: []string{"SuperAdmin"}, Permissions: []string{"x"}}
	back := userFromRecord(ptr(u.record()))
	if back.FirstName != "Sami" || back.LastName != "Trabelsi" {
		t.Fatalf("expected names derived from full name, got %+v", back)
	}
	if len(back.Roles) != 1 || back.Roles[0] != "SuperAdmin" {
		t.Fatalf("expected roles derived from role, got %v", back.Roles)
	}
}

func TestUserNilSafe(t *testing.T) {
	var u *User
	if u.RoleNames() != nil || u.PermissionNames() != nil || u.DisplayName() != "" || u.clone() != nil {
		t.Fatal("nil user must be inert")
	}
	if permission.HasRole(u, "Admin") || permission.HasAnyPermission(u, []string{"users.view"}) {
		t.Fatal("nil user holds no role")
	}
	if !permission.HasAllRoles(u, nil) {
		t.Fatal("an empty requirement holds even without a user")
	}
}

func TestDisplayName(t *testing.T) {
	if got := (&User{FullName: "Amina Ben Ali"}).DisplayName(); got != "Amina Ben Ali" {
		t.Fatalf("got %q", got)
	}
	if got := (&User{FirstName: "Amina"}).DisplayName(); got != "Amina" {
		t.Fatalf("got %q", got)
	}
	if got := (&User{Matricule: "EMP-1"}).DisplayName(); got != "EMP-1" {
		t.Fatalf("got %q", got)
	}
}

func TestCredentialsRedactPassword(t *testing.T) {
	c := Credentials{Matricule: "EMP-1", Password: "hunter2"}
	for _, s := range []string{c.String(), fmt.Sprintf("%v", c), fmt.Sprintf("%+v", c), fmt.Sprintf("%#v", c)} {
		if strings.Contains(s, "hunter2") {
			t.Fatalf("password leaked: %s", s)
		}
	}
}

func TestStateSnapshotIsolation(t *testing.T) {
	var s stateStore
	s.update(func(st *State) {
		st.User = &User{Roles: []string{"Admin"}}
	})
	snap := s.get()
	snap.User.Roles[0] = "mutated"
	if s.get().User.Roles[0] != "Admin" {
		t.Fatal("snapshots must not alias internal state")
	}
}

func ptr(r persist.Record) *persist.Record {
	return &r
}
