package clusteradapter

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	"github.com/homeport/dbmigrate/internal/pkg/logger"
)

// K8sClient implements ClusterClient against a real API server.
type K8sClient struct {
	Clientset kubernetes.Interface
}

func NewK8sClient(clientset kubernetes.Interface) *K8sClient {
	return &K8sClient{Clientset: clientset}
}

func (k *K8sClient) CreateOrPatchSecret(ctx context.Context, name, namespace string, data map[string]string) error {
	logger.Info("creating secret", "secret", fmt.Sprintf("%s/%s", namespace, name))

	secrets := k.Clientset.CoreV1().Secrets(namespace)
	existing, err := secrets.Get(ctx, name, metav1.GetOptions{})
	exists := err == nil
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("read secret %s/%s: %w", namespace, name, err)
	}

	patch := map[string]string{}
	for key, v := range data {
		patch[key] = v
	}
	patch["jdbc_url"] = fmt.Sprintf("jdbc:postgresql://%s:%s/%s",
		valueOr(patch, "host", "?"), valueOr(patch, "port", "?"), valueOr(patch, "dbname", "?"))

	if exists {
		if old, ok := existing.Data["password"]; ok && len(old) > 0 {
			patch["old-password"] = string(old)
		}
	}

	byteData := map[string][]byte{}
	for key, v := range patch {
		byteData[key] = []byte(v)
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Data:       byteData,
	}

	if exists {
		_, err = secrets.Update(ctx, secret, metav1.UpdateOptions{})
	} else {
		_, err = secrets.Create(ctx, secret, metav1.CreateOptions{})
	}
	if err != nil {
		return fmt.Errorf("write secret %s/%s: %w", namespace, name, err)
	}
	return nil
}

func valueOr(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return fallback
}

// RestartWorkload tries Deployment then StatefulSet, matching the
// annotation-based restart used because deleting pods directly races with
// readiness probes on some controllers.
func (k *K8sClient) RestartWorkload(ctx context.Context, app, namespace string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	patch := []byte(fmt.Sprintf(
		`{"spec":{"template":{"metadata":{"annotations":{"kubectl.kubernetes.io/restartedAt":%q}}}}}`, now))

	_, err := k.Clientset.AppsV1().Deployments(namespace).Patch(ctx, app, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("patch deployment %s/%s: %w", namespace, app, err)
	}

	_, err = k.Clientset.AppsV1().StatefulSets(namespace).Patch(ctx, app, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("patch statefulset %s/%s: %w", namespace, app, err)
	}

	logger.Warn("service was not found, not restarting", "namespace", namespace, "app", app)
	return nil
}

func (k *K8sClient) PodStatus(ctx context.Context, namespace, podLabel string) (PodStatus, error) {
	pods, err := k.Clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("app=%s", podLabel),
	})
	if err != nil {
		return PodStatus{}, fmt.Errorf("list pods app=%s in %s: %w", podLabel, namespace, err)
	}

	result := PodStatus{States: map[string]bool{}}
	for _, pod := range pods.Items {
		if len(pod.Status.ContainerStatuses) == 0 {
			continue
		}
		cs := pod.Status.ContainerStatuses[0]
		result.Restarts += int(cs.RestartCount)
		if cs.State.Running != nil {
			result.States["running"] = true
		} else {
			result.States["error"] = true
		}
	}
	return result, nil
}

func (k *K8sClient) AppHealthy(ctx context.Context, namespace, app string) (bool, string, error) {
	_, err := k.Clientset.AppsV1().Deployments(namespace).Get(ctx, app, metav1.GetOptions{})
	if err == nil {
		return true, "", nil
	}
	if !apierrors.IsNotFound(err) {
		return false, "", fmt.Errorf("failed to call k8s api in namespace %s: %w", namespace, err)
	}

	_, err = k.Clientset.AppsV1().StatefulSets(namespace).Get(ctx, app, metav1.GetOptions{})
	if err == nil {
		return true, "", nil
	}
	if !apierrors.IsNotFound(err) {
		return false, "", fmt.Errorf("failed to call k8s api in namespace %s: %w", namespace, err)
	}

	return false, fmt.Sprintf("statefulset or deployment %s/%s does not exist", namespace, app), nil
}
