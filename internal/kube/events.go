package kube

import (
	"context"
	"maps"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	eventsv1 "k8s.io/api/events/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	licerrors "github.com/rcourtman/license-watcher/internal/errors"
	"github.com/rcourtman/license-watcher/internal/license/watcher"
)

const (
	// ReportingController is the controller name stamped on every event.
	ReportingController = "strimzi.io/cluster-operator"
	eventNamePrefix     = "license-event-"
)

// EventSink publishes license diagnostics as events.k8s.io/v1 events.
type EventSink struct {
	client   kubernetes.Interface
	instance string
}

// NewEventSink reports events on behalf of instance, usually the operator
// deployment name.
func NewEventSink(client kubernetes.Interface, instance string) *EventSink {
	return &EventSink{client: client, instance: instance}
}

// Publish creates the event in the namespace of the regarded object.
func (s *EventSink) Publish(ctx context.Context, event watcher.Event) error {
	obj := s.toEvent(event)
	if _, err := s.client.EventsV1().Events(obj.Namespace).Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		return licerrors.Transient("create_event", err)
	}
	return nil
}

func (s *EventSink) toEvent(event watcher.Event) *eventsv1.Event {
	ref := event.Regarding
	return &eventsv1.Event{
		ObjectMeta: metav1.ObjectMeta{
			Name:        eventNamePrefix + uuid.NewString(),
			Namespace:   ref.Namespace,
			Annotations: maps.Clone(event.Annotations),
		},
		EventTime:           metav1.NewMicroTime(event.Time),
		Action:              event.Action,
		Type:                event.Type,
		Reason:              event.Reason,
		Note:                event.Note,
		ReportingController: ReportingController,
		ReportingInstance:   s.instance,
		Regarding: corev1.ObjectReference{
			APIVersion: ref.APIVersion,
			Kind:       ref.Kind,
			Namespace:  ref.Namespace,
			Name:       ref.Name,
		},
	}
}
