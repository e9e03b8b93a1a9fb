package resolve_test

import (
	"testing"

	"github.com/source-cooperative/data.source.coop/internal/resolve"
)

func TestNormalizePrefix(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/acme/photos/", "acme/photos"},
		{"acme/photos", "acme/photos"},
		{"/", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := resolve.NormalizePrefix(c.in); got != c.want {
			t.Errorf("NormalizePrefix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCredentialRecordPermits(t *testing.T) {
	var rec *resolve.CredentialRecord
	if rec.Permits(resolve.RepositoryKey{AccountID: "a", RepositoryID: "b"}) {
		t.Fatal("nil CredentialRecord permits a repository")
	}

	rec = &resolve.CredentialRecord{
		PermittedRepositories: map[resolve.RepositoryKey]bool{
			{AccountID: "acme", RepositoryID: "photos"}: true,
		},
	}
	if !rec.Permits(resolve.RepositoryKey{AccountID: "acme", RepositoryID: "photos"}) {
		t.Fatal("Permits() = false, want true")
	}
	if rec.Permits(resolve.RepositoryKey{AccountID: "acme", RepositoryID: "other"}) {
		t.Fatal("Permits() = true, want false")
	}
}
