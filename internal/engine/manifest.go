package engine

import (
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

// FallbackManifestPath is committed when the LLM names no file or code.
const FallbackManifestPath = "kubernetes/deployment.yaml"

// workloadName strips the ReplicaSet and pod hash suffixes from a pod name.
func workloadName(pod string) string {
	if pod == "" || pod == policy.UnknownPod {
		return "app"
	}
	parts := strings.Split(pod, "-")
	if len(parts) >= 3 {
		return strings.Join(parts[:len(parts)-2], "-")
	}
	return pod
}

// FallbackManifest renders a Deployment with resources tuned for the issue
// type: more memory headroom for memory issues, more CPU and a second replica
// for CPU issues.
func FallbackManifest(is policy.Issue) (string, error) {
	name := workloadName(is.PodName)
	ns := is.Namespace
	if ns == "" {
		ns = policy.DefaultNamespace
	}

	replicas := int32(1)
	container := corev1.Container{
		Name:  name,
		Image: name + ":latest",
	}
	switch is.Type {
	case policy.IssueMemory:
		container.Resources = corev1.ResourceRequirements{
			Limits: corev1.ResourceList{
				corev1.ResourceMemory: resource.MustParse("512Mi"),
				corev1.ResourceCPU:    resource.MustParse("500m"),
			},
			Requests: corev1.ResourceList{
				corev1.ResourceMemory: resource.MustParse("256Mi"),
				corev1.ResourceCPU:    resource.MustParse("100m"),
			},
		}
		container.Env = []corev1.EnvVar{
			{Name: "NODE_OPTIONS", Value: "--max-old-space-size=256"},
		}
	default:
		replicas = 2
		container.Resources = corev1.ResourceRequirements{
			Limits: corev1.ResourceList{
				corev1.ResourceMemory: resource.MustParse("256Mi"),
				corev1.ResourceCPU:    resource.MustParse("1000m"),
			},
			Requests: corev1.ResourceList{
				corev1.ResourceMemory: resource.MustParse("128Mi"),
				corev1.ResourceCPU:    resource.MustParse("200m"),
			},
		}
	}

	labels := map[string]string{"app": name}
	dep := appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: ns,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
				},
			},
		},
	}

	out, err := yaml.Marshal(dep)
	if err != nil {
		return "", fmt.Errorf("marshal fallback manifest: %w", err)
	}
	return string(out), nil
}
