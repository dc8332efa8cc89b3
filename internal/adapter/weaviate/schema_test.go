package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weaviate/weaviate/entities/models"

	adapter "mercora/backend/internal/adapter/weaviate"
	"mercora/backend/internal/vector"
)

func TestSchemaAdapter_ClassExists(t *testing.T) {
	t.Run("Exists", func(t *testing.T) {
		client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/schema/"+vector.ClassName, r.URL.Path)
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(&models.Class{Class: vector.ClassName})
		})
		defer ts.Close()

		exists, err := adapter.NewSchemaAdapter(client).ClassExists(context.Background(), vector.ClassName)
		assert.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("NotFound", func(t *testing.T) {
		client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		defer ts.Close()

		exists, err := adapter.NewSchemaAdapter(client).ClassExists(context.Background(), vector.ClassName)
		assert.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestEnsureSchema_ThroughAdapter(t *testing.T) {
	var created bool
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/schema/"+vector.ClassName:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
			var class models.Class
			json.NewDecoder(r.Body).Decode(&class)
			assert.Equal(t, vector.ClassName, class.Class)
			created = true
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(&class)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	defer ts.Close()

	assert.NoError(t, vector.EnsureSchema(context.Background(), adapter.NewSchemaAdapter(client)))
	assert.True(t, created)
}
