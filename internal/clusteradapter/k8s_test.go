package clusteradapter

import (
	"context"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestK8sClient_CreateOrPatchSecret_PreservesOldPassword(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "svc", Namespace: "ns"},
		Data:       map[string][]byte{"password": []byte("old-pw")},
	})
	client := NewK8sClient(clientset)
	ctx := context.Background()

	err := client.CreateOrPatchSecret(ctx, "svc", "ns", map[string]string{
		"password": "new-pw",
		"host":     "db.internal",
		"port":     "5432",
		"dbname":   "appdb",
	})
	if err != nil {
		t.Fatalf("CreateOrPatchSecret: %v", err)
	}

	secret, err := clientset.CoreV1().Secrets("ns").Get(ctx, "svc", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get secret: %v", err)
	}
	if string(secret.Data["old-password"]) != "old-pw" {
		t.Fatalf("expected old-password preserved, got %q", secret.Data["old-password"])
	}
	if string(secret.Data["password"]) != "new-pw" {
		t.Fatalf("expected password updated, got %q", secret.Data["password"])
	}
	if string(secret.Data["jdbc_url"]) != "jdbc:postgresql://db.internal:5432/appdb" {
		t.Fatalf("unexpected jdbc_url: %q", secret.Data["jdbc_url"])
	}
}

func TestK8sClient_CreateOrPatchSecret_CreatesWhenMissing(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	client := NewK8sClient(clientset)
	ctx := context.Background()

	if err := client.CreateOrPatchSecret(ctx, "svc", "ns", map[string]string{"password": "pw"}); err != nil {
		t.Fatalf("CreateOrPatchSecret: %v", err)
	}

	secret, err := clientset.CoreV1().Secrets("ns").Get(ctx, "svc", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get secret: %v", err)
	}
	if _, ok := secret.Data["old-password"]; ok {
		t.Fatalf("expected no old-password on first create")
	}
}

func TestK8sClient_RestartWorkload_FallsBackToStatefulSet(t *testing.T) {
	clientset := fake.NewSimpleClientset(&appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Name: "svc", Namespace: "ns"},
	})
	client := NewK8sClient(clientset)

	if err := client.RestartWorkload(context.Background(), "svc", "ns"); err != nil {
		t.Fatalf("RestartWorkload: %v", err)
	}
}

func TestK8sClient_RestartWorkload_NeitherFound(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	client := NewK8sClient(clientset)

	if err := client.RestartWorkload(context.Background(), "svc", "ns"); err != nil {
		t.Fatalf("expected no error when workload is absent, got %v", err)
	}
}

func TestK8sClient_AppHealthy(t *testing.T) {
	clientset := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "svc", Namespace: "ns"},
	})
	client := NewK8sClient(clientset)
	ctx := context.Background()

	healthy, reason, err := client.AppHealthy(ctx, "ns", "svc")
	if err != nil || !healthy || reason != "" {
		t.Fatalf("expected healthy=true reason=\"\", got healthy=%v reason=%q err=%v", healthy, reason, err)
	}

	healthy, reason, err = client.AppHealthy(ctx, "ns", "missing")
	if err != nil || healthy || reason == "" {
		t.Fatalf("expected healthy=false with a reason, got healthy=%v reason=%q err=%v", healthy, reason, err)
	}
}
