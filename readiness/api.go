package readiness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kubegate/kubegate/internal/osutil"
)

// APIProber asks the Kubernetes API for node status directly instead of
// shelling out to kubectl. The status string mirrors the kubectl STATUS
// column so the same target matching works for both probe modes.
type APIProber struct {
	clientset kubernetes.Interface
	node      string
}

// NewAPIProber connects to the cluster selected by RestConfig and probes the
// named node, or the first listed node when node is empty.
func NewAPIProber(kubeconfig, node string) (*APIProber, error) {
	restConfig, err := RestConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return &APIProber{clientset: clientset, node: node}, nil
}

// NewAPIProberForClientset wraps an existing clientset, mainly for tests.
func NewAPIProberForClientset(clientset kubernetes.Interface, node string) *APIProber {
	return &APIProber{clientset: clientset, node: node}
}

func (p *APIProber) Probe(ctx context.Context) (string, error) {
	if p.node != "" {
		node, err := p.clientset.CoreV1().Nodes().Get(ctx, p.node, metav1.GetOptions{})
		if err != nil {
			return "", err
		}
		return NodeStatus(node), nil
	}

	nodes, err := p.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", err
	}
	if len(nodes.Items) == 0 {
		return "", fmt.Errorf("cluster has no nodes")
	}
	return NodeStatus(&nodes.Items[0]), nil
}

// NodeStatus derives the kubectl-style STATUS column for a node: Ready or
// NotReady from the NodeReady condition, with ",SchedulingDisabled" appended
// for cordoned nodes.
func NodeStatus(node *corev1.Node) string {
	status := "NotReady"
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
			status = "Ready"
			break
		}
	}
	if node.Spec.Unschedulable {
		status += ",SchedulingDisabled"
	}
	return status
}

// RestConfig resolves a client-go REST config the way kubectl would: the
// explicit path if given, else $KUBECONFIG, else ~/.kube/config when it
// exists, else in-cluster config.
func RestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	if kubeconfig == "" {
		if home, err := os.UserHomeDir(); err == nil {
			if path := filepath.Join(home, ".kube", "config"); osutil.FileExists(path) {
				kubeconfig = path
			}
		}
	}
	if kubeconfig == "" {
		return rest.InClusterConfig()
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}
