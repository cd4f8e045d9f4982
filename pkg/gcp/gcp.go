// Package gcp holds the bits shared by the Pub/Sub and BigQuery clients:
// credential selection, resource naming and not-found detection.
package gcp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
)

var ErrProjectIDRequired = errors.New("gcp project id is required")

// ProjectID returns the trimmed project or ErrProjectIDRequired.
func ProjectID(cfg config.GCPConfig) (string, error) {
	id := strings.TrimSpace(cfg.ProjectID)
	if id == "" {
		return "", ErrProjectIDRequired
	}
	return id, nil
}

// ClientOptions prefers inline JSON credentials over a key file. With
// neither set the libraries fall back to application default credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(cfg.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(cfg.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// ResourceName expands a short id into projects/<project>/<collection>/<id>.
// Names that are already fully qualified for collection pass through.
func ResourceName(project, collection, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", project, collection, name)
}

// IsNotFound understands both REST (BigQuery) and gRPC (Pub/Sub) errors.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return status.Code(err) == codes.NotFound
}
