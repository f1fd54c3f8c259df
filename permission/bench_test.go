package permission

import "testing"

func BenchmarkAuthorizerCheckPermissions(b *testing.B) {
	a, err := NewAuthorizer(map[string][]string{
		"SuperAdmin": {Wildcard},
		"Admin":      {"users.view", "users.create", "notifications.view"},
		"Manager":    {"users.view"},
	})
	if err != nil {
		b.Fatalf("NewAuthorizer failed: %v", err)
	}
	u := &user{roles: []string{"Manager", "Admin"}, perms: []string{"reports.view"}}
	want := []string{"users.view", "notifications.view", "reports.view"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !a.CheckPermissions(u, want, MatchAll) {
			b.Fatal("expected grant")
		}
	}
}

func BenchmarkCheckRoles(b *testing.B) {
	u := &user{roles: []string{"Manager", "Admin"}}
	want := []string{"SuperAdmin", "Admin"}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if !CheckRoles(u, want, MatchAny) {
			b.Fatal("expected grant")
		}
	}
}
