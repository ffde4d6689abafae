package kube

import (
	"context"
	"encoding/base64"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	licerrors "github.com/rcourtman/license-watcher/internal/errors"
)

// SecretStore reads secrets through the core API. Values are returned base64
// encoded, the way the API serves them.
type SecretStore struct {
	client kubernetes.Interface
}

func NewSecretStore(client kubernetes.Interface) *SecretStore {
	return &SecretStore{client: client}
}

// Get returns the secret entries. A secret that does not exist yields an
// empty map and no error. Forbidden and unauthorized responses are not
// retryable.
func (s *SecretStore) Get(ctx context.Context, namespace, name string) (map[string]string, error) {
	secret, err := s.client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return map[string]string{}, nil
	}
	if apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err) {
		return nil, licerrors.AccessDenied("get_secret", err)
	}
	if err != nil {
		return nil, licerrors.Transient("get_secret", err)
	}

	out := make(map[string]string, len(secret.Data)+len(secret.StringData))
	for key, value := range secret.Data {
		out[key] = base64.StdEncoding.EncodeToString(value)
	}
	for key, value := range secret.StringData {
		if _, ok := out[key]; !ok {
			out[key] = base64.StdEncoding.EncodeToString([]byte(value))
		}
	}
	return out, nil
}
