package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ontap-backend/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Keg{}, &model.Pour{}, &model.Session{},
		&model.Drinker{}, &model.Event{},
	))
	return db
}

type fakeNotifier struct {
	calls []model.EventKind
}

func (f *fakeNotifier) Dispatch(tapID int64, kind model.EventKind) {
	f.calls = append(f.calls, kind)
}

func countEvents(t *testing.T, db *gorm.DB, kind model.EventKind) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.Event{}).Where("kind = ?", kind).Count(&n).Error)
	return n
}

func TestDeriver_KegTappedIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	d := NewDeriver(db, nil)
	ctx := context.Background()

	keg := model.Keg{Status: model.KegStatusOnTap, FullVolumeML: 5000, StartTime: time.Now().UTC()}
	require.NoError(t, db.Create(&keg).Error)

	require.NoError(t, d.KegTapped(ctx, &keg))
	require.NoError(t, d.KegTapped(ctx, &keg))

	assert.Equal(t, int64(1), countEvents(t, db, model.EventKegTapped))
}

func TestDeriver_KegEndedNotifiesSubscribers(t *testing.T) {
	db := newTestDB(t)
	notifier := &fakeNotifier{}
	d := NewDeriver(db, notifier)
	ctx := context.Background()

	tapID := int64(3)
	keg := model.Keg{Status: model.KegStatusFinished, FullVolumeML: 5000, EndTime: time.Now().UTC()}
	require.NoError(t, db.Create(&keg).Error)

	require.NoError(t, d.KegEnded(ctx, &keg, &tapID))
	require.NoError(t, d.KegEnded(ctx, &keg, &tapID))

	assert.Equal(t, int64(1), countEvents(t, db, model.EventKegEnded))
	assert.Equal(t, []model.EventKind{model.EventKegEnded}, notifier.calls)
}

func TestDeriver_PourRecordedEmitsSessionAndDrinkEvents(t *testing.T) {
	db := newTestDB(t)
	d := NewDeriver(db, nil)
	ctx := context.Background()

	keg := model.Keg{Status: model.KegStatusOnTap, FullVolumeML: 5000, ServedVolumeML: 500, StartTime: time.Now().UTC()}
	require.NoError(t, db.Create(&keg).Error)
	drinker := model.Drinker{Username: "alice"}
	require.NoError(t, db.Create(&drinker).Error)

	now := time.Now().UTC()
	session := model.Session{StartTime: now, EndTime: now.Add(30 * time.Minute), VolumeML: 500}
	require.NoError(t, db.Create(&session).Error)

	pour := model.Pour{Ticks: 1100, VolumeML: 500, Time: now, KegID: keg.ID, DrinkerID: &drinker.ID, SessionID: &session.ID}
	require.NoError(t, db.Create(&pour).Error)

	require.NoError(t, d.PourRecorded(ctx, &pour, &keg, 5000))

	assert.Equal(t, int64(1), countEvents(t, db, model.EventKegTapped))
	assert.Equal(t, int64(1), countEvents(t, db, model.EventSessionStarted))
	assert.Equal(t, int64(1), countEvents(t, db, model.EventSessionJoined))
	assert.Equal(t, int64(1), countEvents(t, db, model.EventPourRecorded))
	assert.Equal(t, int64(0), countEvents(t, db, model.EventKegVolumeLow))

	// A second pour by the same drinker in the same session adds only the
	// per-pour event.
	pour2 := model.Pour{Ticks: 220, VolumeML: 100, Time: now.Add(time.Minute), KegID: keg.ID, DrinkerID: &drinker.ID, SessionID: &session.ID}
	require.NoError(t, db.Create(&pour2).Error)
	keg.ServedVolumeML += 100
	require.NoError(t, d.PourRecorded(ctx, &pour2, &keg, 4500))

	assert.Equal(t, int64(1), countEvents(t, db, model.EventSessionStarted))
	assert.Equal(t, int64(1), countEvents(t, db, model.EventSessionJoined))
	assert.Equal(t, int64(2), countEvents(t, db, model.EventPourRecorded))
}

func TestDeriver_VolumeLowFiresOnCrossingPourOnly(t *testing.T) {
	db := newTestDB(t)
	notifier := &fakeNotifier{}
	d := NewDeriver(db, notifier)
	ctx := context.Background()

	tapID := int64(1)
	keg := model.Keg{Status: model.KegStatusOnTap, FullVolumeML: 5000, TapID: &tapID, StartTime: time.Now().UTC()}
	require.NoError(t, db.Create(&keg).Error)

	now := time.Now().UTC()

	// First pour leaves 4000 mL, well above the 750 mL threshold.
	keg.ServedVolumeML = 1000
	p1 := model.Pour{Ticks: 2200, VolumeML: 1000, Time: now, KegID: keg.ID}
	require.NoError(t, db.Create(&p1).Error)
	require.NoError(t, d.PourRecorded(ctx, &p1, &keg, 5000))
	assert.Equal(t, int64(0), countEvents(t, db, model.EventKegVolumeLow))

	// Second pour drops remaining from 4000 to 750, crossing the threshold.
	keg.ServedVolumeML = 4250
	p2 := model.Pour{Ticks: 7150, VolumeML: 3250, Time: now.Add(time.Minute), KegID: keg.ID}
	require.NoError(t, db.Create(&p2).Error)
	require.NoError(t, d.PourRecorded(ctx, &p2, &keg, 4000))
	assert.Equal(t, int64(1), countEvents(t, db, model.EventKegVolumeLow))
	assert.Contains(t, notifier.calls, model.EventKegVolumeLow)

	// Further pours below the threshold stay quiet.
	keg.ServedVolumeML = 4350
	p3 := model.Pour{Ticks: 220, VolumeML: 100, Time: now.Add(2 * time.Minute), KegID: keg.ID}
	require.NoError(t, db.Create(&p3).Error)
	require.NoError(t, d.PourRecorded(ctx, &p3, &keg, 750))
	assert.Equal(t, int64(1), countEvents(t, db, model.EventKegVolumeLow))
	assert.Len(t, notifier.calls, 1)
}
