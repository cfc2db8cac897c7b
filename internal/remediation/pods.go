// Package remediation restarts pods and reads their inventory, logs and source
// through the Kubernetes API, with a restart circuit breaker.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/tinkerbelle-io/kube-medic/internal/gateway"
)

// SourceConfigMapAnnotation names the ConfigMap holding a pod's source code.
// Without it the ConfigMap is "<app label>-source".
const SourceConfigMapAnnotation = "kube-medic.io/source-configmap"

// PodController implements gateway.PodController on a Kubernetes clientset.
// Restart deletes the pod and relies on its owner to recreate it.
type PodController struct {
	clientset kubernetes.Interface
	dryRun    bool
	log       *slog.Logger
}

// NewPodController creates a pod controller. In dry-run mode Restart only logs.
func NewPodController(clientset kubernetes.Interface, dryRun bool) *PodController {
	return &PodController{
		clientset: clientset,
		dryRun:    dryRun,
		log:       slog.Default().With("component", "pod-controller"),
	}
}

// Restart deletes the pod. A pod that no longer exists yields an unsuccessful
// result rather than an error.
func (c *PodController) Restart(ctx context.Context, namespace, pod string) (gateway.RestartResult, error) {
	if c.dryRun {
		c.log.Info("[DRY RUN] would restart pod", "pod", pod, "namespace", namespace)
		return gateway.RestartResult{
			Success: true,
			Message: fmt.Sprintf("[DRY RUN] restart of pod %s in namespace %s skipped", pod, namespace),
		}, nil
	}

	err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, pod, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return gateway.RestartResult{
			Success: false,
			Message: fmt.Sprintf("pod %s not found in namespace %s", pod, namespace),
		}, nil
	}
	if err != nil {
		return gateway.RestartResult{}, fmt.Errorf("delete pod %s/%s: %w", namespace, pod, err)
	}

	c.log.Info("pod restarted", "pod", pod, "namespace", namespace)
	return gateway.RestartResult{
		Success: true,
		Message: fmt.Sprintf("Pod %s in namespace %s restarted successfully", pod, namespace),
	}, nil
}

// ListPods returns the pods in namespace.
func (c *PodController) ListPods(ctx context.Context, namespace string) ([]gateway.PodInfo, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods in %s: %w", namespace, err)
	}
	pods := make([]gateway.PodInfo, 0, len(list.Items))
	for _, p := range list.Items {
		containers := make([]string, 0, len(p.Spec.Containers))
		for _, ct := range p.Spec.Containers {
			containers = append(containers, ct.Name)
		}
		pods = append(pods, gateway.PodInfo{
			Name:       p.Name,
			Namespace:  p.Namespace,
			Status:     string(p.Status.Phase),
			Containers: containers,
		})
	}
	return pods, nil
}

// GetLogs returns the last tailLines lines of the pod's logs. A tailLines of
// zero or less returns the full log.
func (c *PodController) GetLogs(ctx context.Context, namespace, pod string, tailLines int64) (string, error) {
	opts := &corev1.PodLogOptions{}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}
	stream, err := c.clientset.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("stream logs %s/%s: %w", namespace, pod, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("read logs %s/%s: %w", namespace, pod, err)
	}
	return string(data), nil
}

// GetSourceCode returns the application source published for the pod in a
// ConfigMap. Multiple keys are concatenated in name order, each preceded by a
// "# file: <key>" header.
func (c *PodController) GetSourceCode(ctx context.Context, namespace, pod string) (string, error) {
	p, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get pod %s/%s: %w", namespace, pod, err)
	}

	name := sourceConfigMapName(p)
	if name == "" {
		return "", fmt.Errorf("pod %s/%s has no %s annotation or app label", namespace, pod, SourceConfigMapAnnotation)
	}

	cm, err := c.clientset.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get source configmap %s/%s: %w", namespace, name, err)
	}
	if len(cm.Data) == 0 {
		return "", errors.New("source configmap " + namespace + "/" + name + " is empty")
	}
	if len(cm.Data) == 1 {
		for _, v := range cm.Data {
			return v, nil
		}
	}

	keys := make([]string, 0, len(cm.Data))
	for k := range cm.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "# file: %s\n%s", k, cm.Data[k])
	}
	return b.String(), nil
}

func sourceConfigMapName(p *corev1.Pod) string {
	if name := p.Annotations[SourceConfigMapAnnotation]; name != "" {
		return name
	}
	if app := p.Labels["app"]; app != "" {
		return app + "-source"
	}
	return ""
}
