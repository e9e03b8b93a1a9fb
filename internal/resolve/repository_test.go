package resolve_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/source-cooperative/data.source.coop/internal/resolve"
)

func TestRepositoryResolverS3Binding(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"backend_type": "s3",
			"endpoint_url": "https://s3.amazonaws.com",
			"region":       "us-west-2",
			"bucket":       "datasets",
			"key_prefix":   "/acme/photos/",
			"access_key":   "AKIABACKEND",
			"secret_key":   "backend-secret",
		})
	}))
	defer srv.Close()

	binding, err := resolve.NewRepositoryResolver(client).Resolve(context.Background(), "acme", "photos")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if binding.Kind != resolve.BackendKindS3 {
		t.Fatalf("Kind = %v, want BackendKindS3", binding.Kind)
	}
	if binding.S3.KeyPrefix != "acme/photos" {
		t.Fatalf("KeyPrefix = %q, want normalized without slashes", binding.S3.KeyPrefix)
	}
	if binding.S3.SecretKey.Unwrap() != "backend-secret" {
		t.Fatalf("SecretKey = %q", binding.S3.SecretKey.Unwrap())
	}
}

func TestRepositoryResolverAzureBinding(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"backend_type":       "azure",
			"account_name":       "acmestorage",
			"container":          "photos",
			"blob_prefix":        "acme/",
			"sas_or_account_key": "sv=...",
		})
	}))
	defer srv.Close()

	binding, err := resolve.NewRepositoryResolver(client).Resolve(context.Background(), "acme", "photos")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if binding.Kind != resolve.BackendKindAzure {
		t.Fatalf("Kind = %v, want BackendKindAzure", binding.Kind)
	}
	if binding.Azure.BlobPrefix != "acme" {
		t.Fatalf("BlobPrefix = %q, want normalized", binding.Azure.BlobPrefix)
	}
}

func TestRepositoryResolverMissingRequiredFields(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"backend_type": "s3",
		})
	}))
	defer srv.Close()

	_, err := resolve.NewRepositoryResolver(client).Resolve(context.Background(), "acme", "photos")
	rerr, ok := err.(*resolve.ResolveError)
	if !ok || rerr.Kind != resolve.ErrKindInvalid {
		t.Fatalf("Resolve() error = %v, want ErrKindInvalid for a bucket-less s3 binding", err)
	}
}

func TestRepositoryResolverUnknownBackendType(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"backend_type": "gcs",
		})
	}))
	defer srv.Close()

	_, err := resolve.NewRepositoryResolver(client).Resolve(context.Background(), "acme", "photos")
	rerr, ok := err.(*resolve.ResolveError)
	if !ok || rerr.Kind != resolve.ErrKindInvalid {
		t.Fatalf("Resolve() error = %v, want ErrKindInvalid for an unknown backend type", err)
	}
}
