package gcp

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
)

func TestProjectID(t *testing.T) {
	_, err := ProjectID(config.GCPConfig{ProjectID: "  "})
	assert.ErrorIs(t, err, ErrProjectIDRequired)

	id, err := ProjectID(config.GCPConfig{ProjectID: " carbridge-prod "})
	assert.NoError(t, err)
	assert.Equal(t, "carbridge-prod", id)
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, ClientOptions(config.GCPConfig{}), 0)
	assert.Len(t, ClientOptions(config.GCPConfig{ApplicationCredentials: "/secrets/sa.json"}), 1)
	assert.Len(t, ClientOptions(config.GCPConfig{
		CredentialsJSON:        `{"type":"service_account"}`,
		ApplicationCredentials: "/secrets/sa.json",
	}), 1)
}

func TestResourceName(t *testing.T) {
	cases := []struct {
		project    string
		collection string
		name       string
		want       string
	}{
		{"carbridge-prod", "topics", " cb-journey-events ", "projects/carbridge-prod/topics/cb-journey-events"},
		{"carbridge-prod", "subscriptions", "projects/other/subscriptions/x", "projects/other/subscriptions/x"},
		{"carbridge-prod", "topics", "projects/other/subscriptions/x", "projects/carbridge-prod/topics/projects/other/subscriptions/x"},
		{"carbridge-prod", "topics", "", ""},
		{"", "topics", "cb-journey-events", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ResourceName(tc.project, tc.collection, tc.name), tc.name)
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("dataset: %w", &googleapi.Error{Code: http.StatusNotFound})))
	assert.False(t, IsNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.True(t, IsNotFound(status.Error(codes.NotFound, "subscription missing")))
	assert.False(t, IsNotFound(status.Error(codes.Unavailable, "try later")))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}
