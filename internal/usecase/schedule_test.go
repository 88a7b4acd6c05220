package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"go.ngs.io/prayer-api/internal/adapter/store"
	"go.ngs.io/prayer-api/internal/adapter/store/csv"
	"go.ngs.io/prayer-api/internal/domain"
)

const testCities = `id,name,country,lat,lon,timezone,method
jakarta,Jakarta,Indonesia,-6.2088,106.8456,Asia/Jakarta,KemenagRI
mecca,Mecca,Saudi Arabia,21.4225,39.8262,Asia/Riyadh,UmmAlQura
london,London,United Kingdom,51.5074,-0.1278,Europe/London,MoonsightingCommittee
`

type memCache struct {
	mu   sync.Mutex
	data map[string]domain.DailySchedule
	sets int
	fail bool
}

func newMemCache() *memCache { return &memCache{data: map[string]domain.DailySchedule{}} }

func (c *memCache) Get(_ context.Context, key string) (domain.DailySchedule, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return domain.DailySchedule{}, false, errors.New("cache down")
	}
	s, ok := c.data[key]
	return s, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, s domain.DailySchedule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	c.data[key] = s
	c.sets++
	return nil
}

func newTestUseCase(t *testing.T, mc *memCache) *ScheduleUseCase {
	t.Helper()
	catalog, err := csv.ReadCities(strings.NewReader(testCities))
	if err != nil {
		t.Fatalf("ReadCities: %v", err)
	}
	region := NewRegionResolver(catalog, 100, domain.MethodMuslimWorldLeague, time.UTC)
	var uc *ScheduleUseCase
	if mc == nil {
		uc = NewScheduleUseCase(catalog, NewProfileRegistry(nil), region, nil)
	} else {
		uc = NewScheduleUseCase(catalog, NewProfileRegistry(nil), region, mc)
	}
	uc.SetClock(func() time.Time { return time.Date(2024, time.March, 11, 11, 9, 40, 0, time.UTC) })
	return uc
}

func ptr[T any](v T) *T { return &v }

func localTime(t *testing.T, resp *ScheduleResponse, p domain.Prayer) string {
	t.Helper()
	for _, pt := range resp.Times {
		if pt.Prayer == p {
			return pt.Local
		}
	}
	t.Fatalf("no %s in response", p)
	return ""
}

func TestScheduleRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ScheduleRequest
		wantErr bool
	}{
		{"lat/lon", ScheduleRequest{Lat: ptr(1.0), Lon: ptr(2.0)}, false},
		{"city", ScheduleRequest{CityID: ptr("jakarta")}, false},
		{"neither", ScheduleRequest{}, true},
		{"both", ScheduleRequest{Lat: ptr(1.0), Lon: ptr(2.0), CityID: ptr("jakarta")}, true},
		{"lat only", ScheduleRequest{Lat: ptr(1.0), CityID: ptr("jakarta")}, true},
		{"latitude out of range", ScheduleRequest{Lat: ptr(91.0), Lon: ptr(0.0)}, true},
		{"longitude NaN", ScheduleRequest{Lat: ptr(0.0), Lon: ptr(math.NaN())}, true},
		{"bad date", ScheduleRequest{CityID: ptr("jakarta"), Date: "11/03/2024"}, true},
		{"adjustment at bound", ScheduleRequest{CityID: ptr("jakarta"), Adjustments: domain.TimeAdjustments{Isha: -30}}, false},
		{"adjustment past bound", ScheduleRequest{CityID: ptr("jakarta"), Adjustments: domain.TimeAdjustments{Fajr: 31}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExecute_CityUsesRegionalDefaults(t *testing.T) {
	uc := newTestUseCase(t, nil)
	resp, err := uc.Execute(context.Background(), ScheduleRequest{CityID: ptr("Jakarta"), Date: "2024-03-11"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if resp.Method != domain.MethodKemenagRI {
		t.Errorf("expected KemenagRI, got %s", resp.Method)
	}
	if resp.Location.Timezone != "Asia/Jakarta" || resp.Location.CityID != "jakarta" {
		t.Errorf("unexpected location %+v", resp.Location)
	}
	if len(resp.Times) != len(domain.Prayers) {
		t.Fatalf("expected %d times, got %d", len(domain.Prayers), len(resp.Times))
	}
	if got := localTime(t, resp, domain.Dhuhr); got != "12:04" {
		t.Errorf("dhuhr: got %s, want 12:04", got)
	}
	if got := localTime(t, resp, domain.Maghrib); got != "18:09" {
		t.Errorf("maghrib: got %s, want 18:09", got)
	}
	if !strings.HasSuffix(resp.Times[0].Time, "+07:00") {
		t.Errorf("expected local offset in %s", resp.Times[0].Time)
	}
	if resp.Hijri.Formatted != "1 Ramadan 1445" || !resp.Hijri.Ramadan {
		t.Errorf("unexpected hijri %+v", resp.Hijri)
	}
	if resp.Date != "2024-03-11" {
		t.Errorf("unexpected date %s", resp.Date)
	}
	if resp.Meta["fingerprint"] == "" {
		t.Error("expected a profile fingerprint in meta")
	}
}

func TestExecute_CoordinatesNearCatalogCity(t *testing.T) {
	uc := newTestUseCase(t, nil)
	resp, err := uc.Execute(context.Background(), ScheduleRequest{Lat: ptr(21.43), Lon: ptr(39.83), Date: "2024-03-11"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Method != domain.MethodUmmAlQura || resp.Location.Timezone != "Asia/Riyadh" {
		t.Errorf("expected Mecca defaults, got %s %s", resp.Method, resp.Location.Timezone)
	}
	if resp.QiblaDeg < 0 || resp.QiblaDeg >= 360 {
		t.Errorf("qibla out of range: %v", resp.QiblaDeg)
	}
}

func TestExecute_FarFromCatalogUsesConfiguredDefaults(t *testing.T) {
	uc := newTestUseCase(t, nil)
	resp, err := uc.Execute(context.Background(), ScheduleRequest{Lat: ptr(0.0), Lon: ptr(-150.0), Date: "2024-03-11"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Method != domain.MethodMuslimWorldLeague || resp.Location.Timezone != "UTC" || resp.Location.City != "" {
		t.Errorf("expected configured defaults, got %+v %s", resp.Location, resp.Method)
	}
}

func TestExecute_Overrides(t *testing.T) {
	uc := newTestUseCase(t, nil)
	base, err := uc.Execute(context.Background(), ScheduleRequest{CityID: ptr("jakarta"), Date: "2024-03-11"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	resp, err := uc.Execute(context.Background(), ScheduleRequest{
		CityID:   ptr("jakarta"),
		Date:     "2024-03-11",
		Method:   "egyptian",
		Asr:      "hanafi",
		Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Method != domain.MethodEgyptian || resp.Asr != "hanafi" || resp.Location.Timezone != "UTC" {
		t.Errorf("overrides not applied: %s %s %s", resp.Method, resp.Asr, resp.Location.Timezone)
	}
	baseAsr, _ := time.Parse(time.RFC3339, base.Times[3].Time)
	asr, _ := time.Parse(time.RFC3339, resp.Times[3].Time)
	if !asr.After(baseAsr) {
		t.Errorf("hanafi asr %v should be after standard asr %v", asr, baseAsr)
	}
}

func TestExecute_Errors(t *testing.T) {
	uc := newTestUseCase(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ScheduleRequest
		want error
	}{
		{"invalid request", ScheduleRequest{}, ErrInvalidRequest},
		{"bad coordinate", ScheduleRequest{Lat: ptr(100.0), Lon: ptr(0.0)}, domain.ErrInvalidCoordinate},
		{"unknown city", ScheduleRequest{CityID: ptr("atlantis")}, store.ErrCityNotFound},
		{"unknown method", ScheduleRequest{CityID: ptr("jakarta"), Method: "lunar"}, domain.ErrUnknownMethod},
		{"unknown time zone", ScheduleRequest{CityID: ptr("jakarta"), Timezone: "Mars/Olympus"}, ErrInvalidRequest},
		{"polar summer", ScheduleRequest{Lat: ptr(70.0), Lon: ptr(20.0), Date: "2024-06-21"}, domain.ErrDegenerateAstronomicalInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Execute(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestExecute_DefaultsToTodayInLocalZone(t *testing.T) {
	uc := newTestUseCase(t, nil)
	// 2024-03-10 20:00 UTC is already the 11th in Jakarta.
	uc.SetClock(func() time.Time { return time.Date(2024, time.March, 10, 20, 0, 0, 0, time.UTC) })
	resp, err := uc.Execute(context.Background(), ScheduleRequest{CityID: ptr("jakarta")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Date != "2024-03-11" {
		t.Errorf("expected local date 2024-03-11, got %s", resp.Date)
	}
}

func TestExecute_Cache(t *testing.T) {
	mc := newMemCache()
	uc := newTestUseCase(t, mc)
	req := ScheduleRequest{CityID: ptr("jakarta"), Date: "2024-03-11"}

	first, err := uc.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	second, err := uc.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if first.Cached || !second.Cached {
		t.Errorf("expected miss then hit, got %v then %v", first.Cached, second.Cached)
	}
	if mc.sets != 1 {
		t.Errorf("expected one cache write, got %d", mc.sets)
	}
	for i := range first.Times {
		if first.Times[i] != second.Times[i] {
			t.Errorf("cached time %d differs: %+v vs %+v", i, first.Times[i], second.Times[i])
		}
	}

	// A different adjustment is a different entry.
	req.Adjustments = domain.TimeAdjustments{Isha: 2}
	third, err := uc.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if third.Cached {
		t.Error("expected a miss for new adjustments")
	}
}

func TestExecute_CacheFailureIsNotFatal(t *testing.T) {
	mc := newMemCache()
	mc.fail = true
	uc := newTestUseCase(t, mc)

	resp, err := uc.Execute(context.Background(), ScheduleRequest{CityID: ptr("jakarta"), Date: "2024-03-11"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Cached {
		t.Error("expected an uncached response")
	}
}

func TestMonth(t *testing.T) {
	uc := newTestUseCase(t, nil)
	resp, err := uc.Month(context.Background(), ScheduleRequest{CityID: ptr("mecca")}, "2024-02")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if len(resp.Days) != 29 {
		t.Fatalf("expected 29 days in February 2024, got %d", len(resp.Days))
	}
	if resp.Days[0].Date != "2024-02-01" || resp.Days[28].Date != "2024-02-29" {
		t.Errorf("unexpected range %s..%s", resp.Days[0].Date, resp.Days[28].Date)
	}

	if _, err := uc.Month(context.Background(), ScheduleRequest{CityID: ptr("mecca")}, "2024-13"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestStatus_MaghribAdhanWindow(t *testing.T) {
	uc := newTestUseCase(t, nil)
	resp, err := uc.Status(context.Background(), ScheduleRequest{CityID: ptr("jakarta")}, domain.DefaultIqamaDelays, time.Time{})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.State != domain.StateAdhanWindow || resp.Current != domain.Maghrib {
		t.Errorf("expected maghrib adhan window, got %s %s", resp.State, resp.Current)
	}
	if resp.Next.Prayer != domain.Maghrib || !resp.Next.IsIqama {
		t.Errorf("expected maghrib iqama next, got %+v", resp.Next)
	}
	if resp.Next.RemainingSeconds <= 0 || resp.Next.RemainingSeconds > 5*60 {
		t.Errorf("remaining out of range: %d", resp.Next.RemainingSeconds)
	}
	if resp.Now != "2024-03-11T18:09:40+07:00" {
		t.Errorf("unexpected now %s", resp.Now)
	}
}

func TestStatus_AfterIshaCrossesToNextDay(t *testing.T) {
	uc := newTestUseCase(t, nil)
	now := time.Date(2024, time.March, 11, 16, 0, 0, 0, time.UTC) // 23:00 WIB
	resp, err := uc.Status(context.Background(), ScheduleRequest{CityID: ptr("jakarta")}, domain.DefaultIqamaDelays, now)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Current != domain.Isha || resp.Next.Prayer != domain.Fajr {
		t.Errorf("expected isha then fajr, got %s then %s", resp.Current, resp.Next.Prayer)
	}
	if !strings.HasPrefix(resp.Next.Time, "2024-03-12T04:") {
		t.Errorf("expected the next day's fajr, got %s", resp.Next.Time)
	}
}

// TestStatus_ZoneFarFromLongitude: places outside the catalog fall back to
// UTC, whose calendar day is up to a day off the local solar day.
func TestStatus_ZoneFarFromLongitude(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		now      time.Time
		current  domain.Prayer
		next     domain.Prayer
		nextAt   time.Time
	}{
		{
			// 04:30 JST, after sunrise on the Tokyo solar day of 16 June.
			name: "tokyo", lat: 35.68, lon: 139.69,
			now:     time.Date(2024, time.June, 15, 19, 30, 0, 0, time.UTC),
			current: domain.Fajr, next: domain.Dhuhr,
			nextAt: time.Date(2024, time.June, 16, 2, 43, 0, 0, time.UTC),
		},
		{
			// 21:00 EDT on 14 June, between Maghrib and Isha.
			name: "new york", lat: 40.7128, lon: -74.006,
			now:     time.Date(2024, time.June, 15, 1, 0, 0, 0, time.UTC),
			current: domain.Maghrib, next: domain.Isha,
			nextAt: time.Date(2024, time.June, 15, 2, 25, 42, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		uc := newTestUseCase(t, nil)
		req := ScheduleRequest{Lat: ptr(tt.lat), Lon: ptr(tt.lon)}

		resp, err := uc.Status(context.Background(), req, domain.DefaultIqamaDelays, tt.now)
		if err != nil {
			t.Fatalf("%s: Status: %v", tt.name, err)
		}
		if resp.Location.Timezone != "UTC" || resp.Method != domain.MethodMuslimWorldLeague {
			t.Fatalf("%s: expected UTC/MWL defaults, got %s/%s", tt.name, resp.Location.Timezone, resp.Method)
		}
		if resp.State != domain.StatePrayerActive || resp.Current != tt.current || resp.Next.Prayer != tt.next {
			t.Errorf("%s: expected %s then %s, got %s/%s then %s",
				tt.name, tt.current, tt.next, resp.State, resp.Current, resp.Next.Prayer)
		}
		next, err := time.Parse(time.RFC3339, resp.Next.Time)
		if err != nil {
			t.Fatalf("%s: next time %q: %v", tt.name, resp.Next.Time, err)
		}
		if d := next.Sub(tt.nextAt); d < -time.Minute || d > time.Minute {
			t.Errorf("%s: next at %s, want about %s", tt.name, next, tt.nextAt)
		}

		later, err := uc.Status(context.Background(), req, domain.DefaultIqamaDelays, tt.now.Add(10*time.Second))
		if err != nil {
			t.Fatalf("%s: Status: %v", tt.name, err)
		}
		if later.Next.RemainingSeconds != resp.Next.RemainingSeconds-10 {
			t.Errorf("%s: countdown %d -> %d, want a 10s decrease",
				tt.name, resp.Next.RemainingSeconds, later.Next.RemainingSeconds)
		}
	}
}

func TestTimeline_SpansNow(t *testing.T) {
	uc := newTestUseCase(t, nil)
	r, err := uc.Resolve(ScheduleRequest{Lat: ptr(40.7128), Lon: ptr(-74.006)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	start := time.Date(2024, time.June, 14, 0, 0, 0, 0, time.UTC)
	for now := start; now.Before(start.Add(48 * time.Hour)); now = now.Add(37 * time.Minute) {
		tl, err := uc.Timeline(context.Background(), r, now)
		if err != nil {
			t.Fatalf("Timeline(%s): %v", now, err)
		}
		if tl.Previous == nil || tl.Next == nil || !tl.Covers(now) {
			t.Fatalf("timeline for %s does not span it: fajr %s, next fajr %v", now, tl.Current.Fajr, tl.Next)
		}
	}
}

func TestStatus_InvalidDelays(t *testing.T) {
	uc := newTestUseCase(t, nil)
	_, err := uc.Status(context.Background(), ScheduleRequest{CityID: ptr("jakarta")}, domain.IqamaDelays{Asr: -1}, time.Time{})
	if !errors.Is(err, domain.ErrInvalidIqamaDelay) {
		t.Errorf("expected ErrInvalidIqamaDelay, got %v", err)
	}
}

func TestQibla(t *testing.T) {
	uc := newTestUseCase(t, nil)
	london := domain.GeoCoordinate{Latitude: 51.5074, Longitude: -0.1278}

	resp, err := uc.Qibla(london, ptr(117.0), 5)
	if err != nil {
		t.Fatalf("Qibla: %v", err)
	}
	if math.Abs(resp.BearingDeg-118.987) > 0.05 {
		t.Errorf("bearing: got %v", resp.BearingDeg)
	}
	if resp.Aligned == nil || !*resp.Aligned {
		t.Error("expected aligned within 5 degrees")
	}
	if resp.DeltaDeg == nil || math.Abs(*resp.DeltaDeg-1.987) > 0.05 {
		t.Errorf("delta: got %v", resp.DeltaDeg)
	}

	resp, err = uc.Qibla(london, ptr(477.0), 1)
	if err != nil {
		t.Fatalf("Qibla: %v", err)
	}
	if *resp.HeadingDeg != 117 || *resp.Aligned {
		t.Errorf("expected normalized heading 117 not aligned at 1 degree, got %v %v", *resp.HeadingDeg, *resp.Aligned)
	}

	resp, err = uc.Qibla(london, nil, 5)
	if err != nil {
		t.Fatalf("Qibla: %v", err)
	}
	if resp.Aligned != nil {
		t.Error("expected no alignment without a heading")
	}

	if _, err := uc.Qibla(london, nil, 181); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestHijri(t *testing.T) {
	uc := newTestUseCase(t, nil)
	resp, err := uc.Hijri("2024-03-11", nil)
	if err != nil {
		t.Fatalf("Hijri: %v", err)
	}
	if resp.Year != 1445 || resp.Month != 9 || resp.Day != 1 {
		t.Errorf("unexpected %+v", resp)
	}
	if _, err := uc.Hijri("yesterday", nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCitiesAndNearest(t *testing.T) {
	uc := newTestUseCase(t, nil)
	if got := uc.Cities(""); len(got) != 3 {
		t.Errorf("expected 3 cities, got %d", len(got))
	}
	if got := uc.Cities("saudi"); len(got) != 1 || got[0].ID != "mecca" {
		t.Errorf("unexpected search result %+v", got)
	}

	resp, err := uc.NearestCity(domain.GeoCoordinate{Latitude: 51.5, Longitude: -0.1})
	if err != nil {
		t.Fatalf("NearestCity: %v", err)
	}
	if resp.City.ID != "london" || resp.DistanceKm > 5 {
		t.Errorf("unexpected nearest %+v", resp)
	}

	empty := NewScheduleUseCase(nil, nil, nil, nil)
	if _, err := empty.NearestCity(domain.GeoCoordinate{}); !errors.Is(err, store.ErrCityNotFound) {
		t.Errorf("expected ErrCityNotFound, got %v", err)
	}
}

func TestParseAdjustments(t *testing.T) {
	q := map[string]string{"adj_isha": "2", "adj_fajr": "-3", "adj_dhuhr": "+1"}
	adj, err := ParseAdjustments(func(k string) string { return q[k] })
	if err != nil {
		t.Fatalf("ParseAdjustments: %v", err)
	}
	want := domain.TimeAdjustments{Fajr: -3, Dhuhr: 1, Isha: 2}
	if adj != want {
		t.Errorf("got %+v, want %+v", adj, want)
	}

	q = map[string]string{"adj_asr": "two"}
	if _, err := ParseAdjustments(func(k string) string { return q[k] }); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}
