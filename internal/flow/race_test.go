package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gotrs-io/mailflow/internal/browser"
	"github.com/gotrs-io/mailflow/internal/browser/browsertest"
)

func probe(p *browsertest.Page, name string) browser.Element {
	return p.Find(browser.Target{Name: name})
}

func TestRaceFirstDetectorToFireWins(t *testing.T) {
	page := browsertest.New().ShowAfter("inbox", 20*time.Millisecond)
	r := New(zaptest.NewLogger(t))

	res := r.Race(context.Background(), "login",
		Detector{Name: "inbox", Outcome: Succeeded(), Probe: probe(page, "inbox"), Timeout: time.Second},
		Detector{Name: "blocked", Outcome: WasBlocked(), Probe: probe(page, "blocked"), Timeout: time.Second},
	)

	assert.Equal(t, Succeeded(), res.Outcome)
	assert.Equal(t, "inbox", res.Detector)
	assert.Less(t, res.Elapsed, 500*time.Millisecond)
}

func TestRaceLowerPriorityDetectorWinsAlone(t *testing.T) {
	page := browsertest.New().ShowAfter("missing-recipient", 10*time.Millisecond)
	r := New(zaptest.NewLogger(t))

	res := r.Race(context.Background(), "send",
		Detector{Name: "toast", Outcome: Succeeded(), Probe: probe(page, "toast"), Timeout: 300 * time.Millisecond},
		Detector{Name: "missing-recipient", Outcome: Invalid("missing-recipient"), Probe: probe(page, "missing-recipient"), Timeout: 300 * time.Millisecond},
	)

	assert.Equal(t, Invalid("missing-recipient"), res.Outcome)
	assert.Equal(t, "missing-recipient", res.Detector)
	assert.Less(t, res.Elapsed, 250*time.Millisecond, "race should not wait for the losing detector")
}

func TestRaceBreaksTiesByPriority(t *testing.T) {
	for i := 0; i < 25; i++ {
		page := browsertest.New().Show("toast").Show("dialog")
		r := New(zaptest.NewLogger(t))

		res := r.Race(context.Background(), "send",
			Detector{Name: "toast", Outcome: Succeeded(), Probe: probe(page, "toast"), Timeout: time.Second},
			Detector{Name: "dialog", Outcome: Invalid("missing-recipient"), Probe: probe(page, "dialog"), Timeout: time.Second},
		)
		require.Equal(t, Succeeded(), res.Outcome, "iteration %d", i)
	}
}

func TestRaceReturnsUnknownWhenEveryDetectorTimesOut(t *testing.T) {
	page := browsertest.New()
	r := New(zaptest.NewLogger(t))

	start := time.Now()
	res := r.Race(context.Background(), "send",
		Detector{Name: "toast", Outcome: Succeeded(), Probe: probe(page, "toast"), Timeout: 30 * time.Millisecond},
		Detector{Name: "dialog", Outcome: Invalid("missing-recipient"), Probe: probe(page, "dialog"), Timeout: 20 * time.Millisecond},
	)

	assert.Equal(t, Undetermined(CauseTimeout), res.Outcome)
	assert.Empty(t, res.Detector)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRaceLastChanceSweepCatchesLateState(t *testing.T) {
	late := &scriptedProbe{waitErr: browser.ErrTimeout, visible: true}
	never := &scriptedProbe{waitErr: browser.ErrTimeout}
	r := New(zaptest.NewLogger(t))

	res := r.Race(context.Background(), "send",
		Detector{Name: "toast", Outcome: Succeeded(), Probe: never, Timeout: 10 * time.Millisecond},
		Detector{Name: "text", Outcome: Succeeded(), Probe: late, Timeout: 10 * time.Millisecond},
	)

	assert.Equal(t, Succeeded(), res.Outcome)
	assert.Equal(t, "text", res.Detector)
}

func TestRaceUnrecognizedWhenDetectorsFail(t *testing.T) {
	broken := &scriptedProbe{waitErr: errors.New("target closed")}
	r := New(zaptest.NewLogger(t))

	res := r.Race(context.Background(), "send",
		Detector{Name: "toast", Outcome: Succeeded(), Probe: broken, Timeout: time.Second},
		Detector{Name: "dialog", Outcome: Invalid("missing-recipient"), Probe: &scriptedProbe{waitErr: browser.ErrTimeout}, Timeout: 10 * time.Millisecond},
	)

	assert.Equal(t, Undetermined(CauseUnrecognized), res.Outcome)
}

func TestRaceWithoutDetectors(t *testing.T) {
	res := New(nil).Race(context.Background(), "empty")
	assert.Equal(t, Undetermined(CauseUnrecognized), res.Outcome)
}

func TestRaceGuardBoundsProbesThatIgnoreTheirDeadline(t *testing.T) {
	stubborn := &scriptedProbe{waitErr: browser.ErrTimeout, delay: 2 * time.Second}
	r := New(zaptest.NewLogger(t), WithGrace(30*time.Millisecond))

	start := time.Now()
	res := r.Race(context.Background(), "login",
		Detector{Name: "inbox", Outcome: Succeeded(), Probe: stubborn, Timeout: 20 * time.Millisecond},
	)

	assert.Equal(t, Undetermined(CauseTimeout), res.Outcome)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRaceHonorsCancelledContext(t *testing.T) {
	page := browsertest.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(zaptest.NewLogger(t)).Race(ctx, "login",
		Detector{Name: "inbox", Outcome: Succeeded(), Probe: probe(page, "inbox"), Timeout: time.Second},
	)

	assert.Equal(t, Undetermined(CauseCancelled), res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, res.Detector)
}

func TestRaceCutShortByDeadline(t *testing.T) {
	page := browsertest.New().ShowAfter("inbox", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := New(zaptest.NewLogger(t)).Race(ctx, "login",
		Detector{Name: "inbox", Outcome: Succeeded(), Probe: probe(page, "inbox"), Timeout: time.Second},
		Detector{Name: "blocked", Outcome: WasBlocked(), Probe: probe(page, "blocked"), Timeout: time.Second},
	)

	assert.Equal(t, Undetermined(CauseCancelled), res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRaceTimeoutCarriesNoContextError(t *testing.T) {
	page := browsertest.New()

	res := New(zaptest.NewLogger(t)).Race(context.Background(), "login",
		Detector{Name: "inbox", Outcome: Succeeded(), Probe: probe(page, "inbox"), Timeout: 20 * time.Millisecond},
	)

	assert.Equal(t, Undetermined(CauseTimeout), res.Outcome)
	assert.NoError(t, res.Err)
}

func TestRaceReportsToRecorder(t *testing.T) {
	page := browsertest.New().Show("inbox")
	rec := &recordingRecorder{}
	r := New(zaptest.NewLogger(t), WithRecorder(rec))

	r.Race(context.Background(), "login",
		Detector{Name: "inbox", Outcome: Succeeded(), Probe: probe(page, "inbox"), Timeout: time.Second},
	)

	require.Len(t, rec.races, 1)
	assert.Equal(t, "login", rec.races[0].flow)
	assert.Equal(t, Succeeded(), rec.races[0].res.Outcome)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", Succeeded().String())
	assert.Equal(t, "blocked", WasBlocked().String())
	assert.Equal(t, "validation-error(missing-recipient)", Invalid("missing-recipient").String())
	assert.Equal(t, "unknown(timeout)", Undetermined(CauseTimeout).String())
	assert.True(t, Invalid("x").Is(ValidationError))
	assert.False(t, Invalid("x").Is(Success))
}

type scriptedProbe struct {
	waitErr error
	delay   time.Duration
	visible bool
}

func (p *scriptedProbe) WaitVisible(ctx context.Context, _ time.Duration) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return p.waitErr
}

func (p *scriptedProbe) Visible(context.Context) (bool, error) { return p.visible, nil }

type observedRace struct {
	flow string
	res  Result
}

type recordingRecorder struct {
	mu            sync.Mutex
	races         []observedRace
	interstitials []string
}

func (r *recordingRecorder) ObserveRace(flow string, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.races = append(r.races, observedRace{flow: flow, res: res})
}

func (r *recordingRecorder) ObserveInterstitial(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interstitials = append(r.interstitials, name)
}
