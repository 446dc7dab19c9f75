package pushnotification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/config"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/eventbus"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/pushsubscription"
)

type fakeRepo struct {
	subs []*pushsubscription.Subscription
}

func (r *fakeRepo) Create(context.Context, *pushsubscription.Subscription) error { return nil }
func (r *fakeRepo) Get(context.Context, string) (*pushsubscription.Subscription, error) {
	return nil, nil
}
func (r *fakeRepo) List(context.Context) ([]*pushsubscription.Subscription, error) {
	return r.subs, nil
}
func (r *fakeRepo) Delete(context.Context, string) error { return nil }
func (r *fakeRepo) FindByEndpoint(context.Context, string) (*pushsubscription.Subscription, error) {
	return nil, nil
}
func (r *fakeRepo) DeleteByEndpoint(context.Context, string) error { return nil }

func newTestSender(repo *fakeRepo) (*Sender, *[]string) {
	s := NewSender(&config.VAPIDEnv{
		VAPIDPublicKey:  "pub",
		VAPIDPrivateKey: "priv",
	}, repo)
	delivered := &[]string{}
	s.deliver = func(_ context.Context, sub *pushsubscription.Subscription, _ []byte) {
		*delivered = append(*delivered, sub.Endpoint)
	}
	return s, delivered
}

func threeUserRepo() *fakeRepo {
	return &fakeRepo{subs: []*pushsubscription.Subscription{
		{ID: "s1", UserID: "u1", Endpoint: "https://push/u1-laptop"},
		{ID: "s2", UserID: "u1", Endpoint: "https://push/u1-phone"},
		{ID: "s3", UserID: "u2", Endpoint: "https://push/u2-laptop"},
	}}
}

func TestSendToUser_OnlyThatUsersSubscriptions(t *testing.T) {
	s, delivered := newTestSender(threeUserRepo())
	s.SendToUser(context.Background(), "u1", &NotificationPayload{Title: "Translation ready"})
	require.Len(t, *delivered, 2)
	assert.Contains(t, *delivered, "https://push/u1-laptop")
	assert.Contains(t, *delivered, "https://push/u1-phone")
	assert.NotContains(t, *delivered, "https://push/u2-laptop")
}

func TestSendToUser_NoSubscriptions(t *testing.T) {
	s, delivered := newTestSender(threeUserRepo())
	s.SendToUser(context.Background(), "u3", &NotificationPayload{Title: "Translation ready"})
	assert.Empty(t, *delivered)
}

func TestSendToAll_EverySubscription(t *testing.T) {
	s, delivered := newTestSender(threeUserRepo())
	s.SendToAll(context.Background(), &NotificationPayload{Title: "Test"})
	assert.Len(t, *delivered, 3)
}

func TestSend_SkipsWithoutVAPIDKeys(t *testing.T) {
	s, delivered := newTestSender(threeUserRepo())
	s.vapidEnv = &config.VAPIDEnv{}
	s.SendToAll(context.Background(), &NotificationPayload{Title: "Test"})
	assert.Empty(t, *delivered)
}

type fakeNotifier struct {
	toUser map[string]int
	toAll  int
}

func (n *fakeNotifier) SendToAll(context.Context, *NotificationPayload) { n.toAll++ }
func (n *fakeNotifier) SendToUser(_ context.Context, userID string, _ *NotificationPayload) {
	if n.toUser == nil {
		n.toUser = map[string]int{}
	}
	n.toUser[userID]++
}

func TestDispatch_RoutesToEventUser(t *testing.T) {
	fake := &fakeNotifier{}
	d := &Dispatcher{sender: fake}

	d.dispatch(context.Background(), &eventbus.Event{
		Type:     eventbus.EventTranslationCompleted,
		TaskID:   "T-1",
		Metadata: map[string]string{"userId": "u1"},
	})
	assert.Equal(t, 1, fake.toUser["u1"])
	assert.Zero(t, fake.toAll)
}

func TestDispatch_FansOutWithoutUser(t *testing.T) {
	fake := &fakeNotifier{}
	d := &Dispatcher{sender: fake}

	d.dispatch(context.Background(), &eventbus.Event{
		Type:   eventbus.EventSubmissionSubmitted,
		TaskID: "T-1",
	})
	assert.Equal(t, 1, fake.toAll)
	assert.Empty(t, fake.toUser)
}

func TestDispatch_IgnoresUnknownEvents(t *testing.T) {
	fake := &fakeNotifier{}
	d := &Dispatcher{sender: fake}

	d.dispatch(context.Background(), &eventbus.Event{
		Type:     "task.started",
		Metadata: map[string]string{"userId": "u1"},
	})
	assert.Zero(t, fake.toAll)
	assert.Empty(t, fake.toUser)
}
