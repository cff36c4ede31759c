package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ontap-backend/config"
	"ontap-backend/internal/db"
	"ontap-backend/internal/event"
	"ontap-backend/internal/ingest"
	"ontap-backend/internal/keg"
	"ontap-backend/internal/meter"
	"ontap-backend/internal/model"
	"ontap-backend/internal/pour"
	"ontap-backend/internal/session"
	"ontap-backend/internal/tap"
)

// capturingNotifier records every push the deriver asks for.
type capturingNotifier struct {
	kinds []model.EventKind
}

func (n *capturingNotifier) Dispatch(tapID int64, kind model.EventKind) {
	n.kinds = append(n.kinds, kind)
}

// TestKegLifecycle drives a keg from mounting through depletion using raw
// cumulative meter readings, and verifies the ledger, session, and event log
// at each step.
func TestKegLifecycle(t *testing.T) {
	// --- Test Setup ---

	// 1. Setup an in-memory SQLite database for testing.
	testDB, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to the in-memory database: %v", err)
	}
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()

	require.NoError(t, db.Migrate(testDB))

	// 2. Create a mock configuration.
	cfg := &config.Config{}
	cfg.Broker.SubjectPrefix = "kegboard.meters"
	cfg.Flow.MinPourTicks = 10
	cfg.Flow.MaxDeltaTicks = 10000
	cfg.Flow.DefaultTicksPerML = 2.2
	cfg.Session.Timeout = 180 * time.Minute

	// 3. Instantiate the full pipeline with a capturing notifier.
	notifier := &capturingNotifier{}
	deriver := event.NewDeriver(testDB, notifier)
	meters := meter.NewRegistry(testDB, cfg.Flow.DefaultTicksPerML)
	windower := session.NewWindower(cfg.Session.Timeout)
	recorder := pour.NewRecorder(testDB, windower, deriver, meters)
	taps := tap.NewRegistry(testDB, deriver)
	listener := ingest.NewListener(cfg, meters, recorder)
	ctx := context.Background()

	// 4. Pre-populate a tap, a 5000 mL keg, and a bound meter.
	tp := model.Tap{Name: "Main Tap", SortOrder: 1}
	require.NoError(t, testDB.Create(&tp).Error)
	k, err := keg.Create(testDB, nil, "other", 5000, "test brew")
	require.NoError(t, err)

	_, err = taps.Attach(ctx, tp.ID, k.ID)
	require.NoError(t, err)

	m, err := meters.GetOrCreateByName(ctx, "kegboard.flow0")
	require.NoError(t, err)
	require.NoError(t, testDB.Model(&model.FlowMeter{}).Where("id = ?", m.ID).
		Updates(map[string]any{"tap_id": tp.ID, "ticks_per_ml": 2.0}).Error)

	reload := func() model.Keg {
		var fresh model.Keg
		require.NoError(t, testDB.First(&fresh, k.ID).Error)
		return fresh
	}
	countKind := func(kind model.EventKind) int64 {
		var n int64
		testDB.Model(&model.Event{}).Where("kind = ?", kind).Count(&n)
		return n
	}

	// --- Cycle 1: First pour drains 1000 mL ---
	t.Run("Cycle 1: First Pour", func(t *testing.T) {
		// The first reading only establishes the counter baseline.
		listener.HandleMessage(ctx, "kegboard.meters.kegboard.flow0", []byte("0"))
		// 2000 ticks at 2 ticks/mL is a 1000 mL pour.
		listener.HandleMessage(ctx, "kegboard.meters.kegboard.flow0", []byte("2000"))

		fresh := reload()
		assert.Equal(t, 1000.0, fresh.ServedVolumeML)
		assert.Equal(t, 80.0, fresh.PercentFull())

		var p model.Pour
		require.NoError(t, testDB.First(&p).Error)
		assert.Equal(t, int64(2000), p.Ticks)
		require.NotNil(t, p.SessionID, "the pour opens a session")

		assert.Equal(t, int64(1), countKind(model.EventKegTapped))
		assert.Equal(t, int64(1), countKind(model.EventSessionStarted))
		assert.Equal(t, int64(1), countKind(model.EventPourRecorded))
		assert.Equal(t, int64(0), countKind(model.EventKegVolumeLow), "80% full is nowhere near low")
	})

	// --- Cycle 2: Second pour crosses the low-volume threshold ---
	t.Run("Cycle 2: Crossing Pour", func(t *testing.T) {
		// 6500 more ticks is 3250 mL, leaving 750 mL of 5000: exactly 15%.
		listener.HandleMessage(ctx, "kegboard.meters.kegboard.flow0", []byte("8500"))

		fresh := reload()
		assert.Equal(t, 750.0, fresh.RemainingVolumeML())
		assert.Equal(t, 15.0, fresh.PercentFull())

		assert.Equal(t, int64(1), countKind(model.EventKegVolumeLow))
		assert.Equal(t, []model.EventKind{model.EventKegVolumeLow}, notifier.kinds)

		var sessions int64
		testDB.Model(&model.Session{}).Count(&sessions)
		assert.Equal(t, int64(1), sessions, "both pours share the session window")
	})

	// --- Cycle 3: Pours below the threshold stay quiet ---
	t.Run("Cycle 3: Pour Below Threshold", func(t *testing.T) {
		listener.HandleMessage(ctx, "kegboard.meters.kegboard.flow0", []byte("8700"))

		assert.Equal(t, int64(3), countKind(model.EventPourRecorded))
		assert.Equal(t, int64(1), countKind(model.EventKegVolumeLow), "the crossing fires exactly once")
		assert.Len(t, notifier.kinds, 1)
	})

	// --- Cycle 4: Detach kicks the keg ---
	t.Run("Cycle 4: Detach", func(t *testing.T) {
		require.NoError(t, taps.Detach(ctx, tp.ID))

		fresh := reload()
		assert.Equal(t, model.KegStatusFinished, fresh.Status)
		assert.Nil(t, fresh.TapID)

		assert.Equal(t, int64(1), countKind(model.EventKegEnded))
		assert.Equal(t, []model.EventKind{model.EventKegVolumeLow, model.EventKegEnded}, notifier.kinds)

		// Ticks that arrive after the kick are dropped, not booked.
		listener.HandleMessage(ctx, "kegboard.meters.kegboard.flow0", []byte("8900"))
		assert.Equal(t, int64(3), countKind(model.EventPourRecorded))
	})
}
