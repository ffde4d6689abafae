// Package kube adapts the Kubernetes API to the license watcher.
package kube

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClient builds a clientset from an explicit kubeconfig, the in-cluster
// service account, or the default kubeconfig, in that order.
func NewClient(kubeconfigPath, kubeContext string) (kubernetes.Interface, error) {
	restCfg, contextName, err := buildRESTConfig(kubeconfigPath, kubeContext)
	if err != nil {
		return nil, err
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}

	log.Info().
		Str("component", "kube").
		Str("context", contextName).
		Str("host", restCfg.Host).
		Msg("Kubernetes client configured")
	return client, nil
}

func buildRESTConfig(kubeconfigPath, kubeContext string) (*rest.Config, string, error) {
	kubeconfigPath = strings.TrimSpace(kubeconfigPath)
	kubeContext = strings.TrimSpace(kubeContext)

	// Prefer explicit kubeconfig.
	if kubeconfigPath != "" {
		loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath}
		return fromClientConfig(loadingRules, kubeContext)
	}

	restCfg, err := rest.InClusterConfig()
	if err == nil {
		return restCfg, "in-cluster", nil
	}

	restCfg, contextName, kubeErr := fromClientConfig(clientcmd.NewDefaultClientConfigLoadingRules(), kubeContext)
	if kubeErr != nil {
		return nil, "", fmt.Errorf("kubernetes config not available (in-cluster failed: %v; kubeconfig failed: %w)", err, kubeErr)
	}
	return restCfg, contextName, nil
}

func fromClientConfig(rules *clientcmd.ClientConfigLoadingRules, kubeContext string) (*rest.Config, string, error) {
	overrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		overrides.CurrentContext = kubeContext
	}

	cc := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)
	rawCfg, err := cc.RawConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load kubeconfig: %w", err)
	}

	contextName := rawCfg.CurrentContext
	if kubeContext != "" {
		contextName = kubeContext
	}

	restCfg, err := cc.ClientConfig()
	if err != nil {
		return nil, "", fmt.Errorf("build kubeconfig rest config: %w", err)
	}
	return restCfg, contextName, nil
}
