package remediation

import (
	"context"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func appPod(name string, labels, annotations map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   "default",
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "app-backend"}, {Name: "sidecar"}},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func TestRestartDryRun(t *testing.T) {
	clientset := fake.NewSimpleClientset(appPod("app-1", nil, nil))
	c := NewPodController(clientset, true)

	res, err := c.Restart(context.Background(), "default", "app-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || !strings.Contains(res.Message, "DRY RUN") {
		t.Errorf("unexpected dry-run result: %+v", res)
	}

	if _, err := clientset.CoreV1().Pods("default").Get(context.Background(), "app-1", metav1.GetOptions{}); err != nil {
		t.Errorf("pod should still exist in dry-run mode: %v", err)
	}
}

func TestRestartDeletesPod(t *testing.T) {
	clientset := fake.NewSimpleClientset(appPod("app-1", nil, nil))
	c := NewPodController(clientset, false)

	res, err := c.Restart(context.Background(), "default", "app-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Errorf("expected success, got %+v", res)
	}

	if _, err := clientset.CoreV1().Pods("default").Get(context.Background(), "app-1", metav1.GetOptions{}); err == nil {
		t.Error("pod should have been deleted")
	}
}

func TestRestartMissingPod(t *testing.T) {
	c := NewPodController(fake.NewSimpleClientset(), false)

	res, err := c.Restart(context.Background(), "default", "ghost")
	if err != nil {
		t.Fatalf("missing pod should not be a transport error: %v", err)
	}
	if res.Success {
		t.Error("restart of a missing pod should not succeed")
	}
}

func TestListPods(t *testing.T) {
	other := appPod("elsewhere", nil, nil)
	other.Namespace = "kube-system"
	clientset := fake.NewSimpleClientset(appPod("app-1", nil, nil), appPod("app-2", nil, nil), other)
	c := NewPodController(clientset, false)

	pods, err := c.ListPods(context.Background(), "default")
	if err != nil {
		t.Fatal(err)
	}
	if len(pods) != 2 {
		t.Fatalf("expected 2 pods in default, got %d", len(pods))
	}
	for _, p := range pods {
		if p.Namespace != "default" || p.Status != "Running" {
			t.Errorf("unexpected pod: %+v", p)
		}
		if len(p.Containers) != 2 || p.Containers[0] != "app-backend" {
			t.Errorf("containers = %v", p.Containers)
		}
	}
}

func TestGetLogs(t *testing.T) {
	c := NewPodController(fake.NewSimpleClientset(appPod("app-1", nil, nil)), false)

	logs, err := c.GetLogs(context.Background(), "default", "app-1", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if logs == "" {
		t.Error("expected log content from fake clientset")
	}
}

func TestGetSourceCodeFromAppLabel(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		appPod("app-1", map[string]string{"app": "shop"}, nil),
		&corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: "shop-source", Namespace: "default"},
			Data:       map[string]string{"app.py": "def handler():\n    pass\n"},
		},
	)
	c := NewPodController(clientset, false)

	code, err := c.GetSourceCode(context.Background(), "default", "app-1")
	if err != nil {
		t.Fatal(err)
	}
	if code != "def handler():\n    pass\n" {
		t.Errorf("code = %q", code)
	}
}

func TestGetSourceCodeFromAnnotationMultipleFiles(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		appPod("app-1", map[string]string{"app": "shop"}, map[string]string{SourceConfigMapAnnotation: "custom-src"}),
		&corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: "custom-src", Namespace: "default"},
			Data:       map[string]string{"b.py": "B", "a.py": "A"},
		},
	)
	c := NewPodController(clientset, false)

	code, err := c.GetSourceCode(context.Background(), "default", "app-1")
	if err != nil {
		t.Fatal(err)
	}
	want := "# file: a.py\nA\n# file: b.py\nB"
	if code != want {
		t.Errorf("code = %q, want %q", code, want)
	}
}

func TestGetSourceCodeMissingConfigMap(t *testing.T) {
	c := NewPodController(fake.NewSimpleClientset(appPod("app-1", nil, nil)), false)

	if _, err := c.GetSourceCode(context.Background(), "default", "app-1"); err == nil {
		t.Error("pod without app label or annotation should fail")
	}
}
