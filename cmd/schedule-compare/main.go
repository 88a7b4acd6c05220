// Command schedule-compare reads a published prayer timetable and compares
// it against the API schedule for each listed day, reporting per prayer the
// mean offset (recommended adj_<prayer>) and RMSE around that mean.
//
// The timetable is a CSV with the header date,fajr,sunrise,dhuhr,asr,maghrib,isha
// where date is YYYY-MM-DD and each time is local HH:MM.
//
// With -profile_out, the offsets are folded into the bias of the -method
// profile and written as a PROFILES_PATH document under -profile_name.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go.ngs.io/prayer-api/internal/config"
	"go.ngs.io/prayer-api/internal/domain"
)

type apiTime struct {
	Prayer string `json:"prayer"`
	Local  string `json:"local"`
}

type apiResponse struct {
	Date  string    `json:"date"`
	Times []apiTime `json:"times"`
}

// timetableRow is one published day, in minutes after local midnight.
type timetableRow struct {
	Date    string
	Minutes map[domain.Prayer]int
}

// stats accumulates published-minus-API differences for one prayer.
type stats struct {
	diffs []float64
}

func (s *stats) add(d float64) { s.diffs = append(s.diffs, d) }

// meanRMSE returns the mean difference and the RMSE around it.
func (s *stats) meanRMSE() (mean, rmse float64) {
	if len(s.diffs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, d := range s.diffs {
		sum += d
	}
	mean = sum / float64(len(s.diffs))

	var sse float64
	for _, d := range s.diffs {
		dd := d - mean
		sse += dd * dd
	}
	return mean, math.Sqrt(sse / float64(len(s.diffs)))
}

func fetch(rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("HTTP %d (failed to read body: %v)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

// loadTimetable loads the timetable from a file or URL.
func loadTimetable(path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return fetch(path)
	}
	return os.ReadFile(path)
}

// parseClock parses HH:MM (or H:MM) into minutes after midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// parseTimetable reads timetable rows. Columns may appear in any order.
func parseTimetable(r io.Reader) ([]timetableRow, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	dateCol, ok := col["date"]
	if !ok {
		return nil, fmt.Errorf("timetable header has no date column")
	}

	var rows []timetableRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := time.Parse("2006-01-02", record[dateCol]); err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q", line, record[dateCol])
		}
		row := timetableRow{Date: record[dateCol], Minutes: map[domain.Prayer]int{}}
		for _, p := range domain.Prayers {
			i, ok := col[string(p)]
			if !ok || i >= len(record) || strings.TrimSpace(record[i]) == "" {
				continue
			}
			m, err := parseClock(record[i])
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, p, err)
			}
			row.Minutes[p] = m
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("timetable has no rows")
	}
	return rows, nil
}

// requestURL builds the /v1/prayer-times URL for date.
func requestURL(base string, params url.Values, date string) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("date", date)
	return strings.TrimSuffix(base, "/") + "/v1/prayer-times?" + q.Encode()
}

// fetchDay fetches one API day as minutes after local midnight.
func fetchDay(rawURL string) (map[domain.Prayer]int, error) {
	body, err := fetch(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch API: %v", err)
	}
	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, fmt.Errorf("invalid API JSON: %v", err)
	}

	out := make(map[domain.Prayer]int, len(api.Times))
	for _, t := range api.Times {
		m, err := parseClock(t.Local)
		if err != nil {
			return nil, err
		}
		out[domain.Prayer(t.Prayer)] = m
	}
	return out, nil
}

// circularMinutes returns a-b folded into (-720, 720].
func circularMinutes(a, b int) int {
	d := (a - b) % 1440
	if d > 720 {
		d -= 1440
	} else if d <= -720 {
		d += 1440
	}
	return d
}

// compare pairs each published time with the API time of the same day.
func compare(rows []timetableRow, api func(date string) (map[domain.Prayer]int, error)) (map[domain.Prayer]*stats, error) {
	out := make(map[domain.Prayer]*stats, len(domain.Prayers))
	for _, p := range domain.Prayers {
		out[p] = &stats{}
	}
	for _, row := range rows {
		got, err := api(row.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", row.Date, err)
		}
		for p, published := range row.Minutes {
			computed, ok := got[p]
			if !ok {
				return nil, fmt.Errorf("%s: API missing %s", row.Date, p)
			}
			out[p].add(float64(circularMinutes(published, computed)))
		}
	}
	return out, nil
}

func report(w io.Writer, results map[domain.Prayer]*stats) {
	fmt.Fprintf(w, "%-8s %6s %14s %10s %8s\n", "prayer", "pairs", "mean [min]", "rmse", "adj")
	for _, p := range domain.Prayers {
		s := results[p]
		if len(s.diffs) == 0 {
			continue
		}
		mean, rmse := s.meanRMSE()
		fmt.Fprintf(w, "%-8s %6d %14.2f %10.2f %+8d\n", p, len(s.diffs), mean, rmse, int(math.Round(mean)))
	}
}

// tunedProfile adds the rounded mean offsets to base's bias.
func tunedProfile(base domain.CalculationProfile, name string, results map[domain.Prayer]*stats) (domain.CalculationProfile, error) {
	p := base
	p.Method = domain.Method(name)
	p.Description = fmt.Sprintf("%s tuned against a published timetable", base.Method)
	for _, prayer := range domain.Prayers {
		s := results[prayer]
		if s == nil || len(s.diffs) == 0 {
			continue
		}
		mean, _ := s.meanRMSE()
		p.Bias = p.Bias.Set(prayer, p.Bias.Minutes(prayer)+int(math.Round(mean)))
	}
	if err := p.Validate(); err != nil {
		return domain.CalculationProfile{}, err
	}
	return p, nil
}

// writeProfile writes p as a profiles document that config.LoadProfiles accepts.
func writeProfile(path string, p domain.CalculationProfile) error {
	b, err := yaml.Marshal(config.ProfilesFile{Profiles: []domain.CalculationProfile{p}})
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func main() {
	var (
		timetablePath string
		apiBase       string
		city          string
		lat, lon      string
		method        string
		tz            string
		asr           string
		profileOut    string
		profileName   string
	)
	flag.StringVar(&timetablePath, "timetable", "", "Path or URL to the published timetable CSV")
	flag.StringVar(&apiBase, "api", "http://localhost:8080", "API base URL")
	flag.StringVar(&city, "city", "", "Catalog city ID (or use -lat/-lon)")
	flag.StringVar(&lat, "lat", "", "Latitude")
	flag.StringVar(&lon, "lon", "", "Longitude")
	flag.StringVar(&method, "method", "", "Calculation method (default: regional)")
	flag.StringVar(&tz, "tz", "", "IANA time zone of the timetable (default: regional)")
	flag.StringVar(&asr, "asr", "", "Asr school: standard or hanafi")
	flag.StringVar(&profileOut, "profile_out", "", "Write a tuned profile YAML here (requires -method)")
	flag.StringVar(&profileName, "profile_name", "", "Name of the tuned profile (default: <method>Local)")
	flag.Parse()

	if timetablePath == "" || (city == "" && (lat == "" || lon == "")) {
		fmt.Fprintln(os.Stderr, "Usage: schedule-compare -timetable <path|url> (-city jakarta | -lat .. -lon ..) [-method KemenagRI -tz Asia/Jakarta -api http://localhost:8080]")
		os.Exit(2)
	}

	var base domain.CalculationProfile
	if profileOut != "" {
		m, err := domain.ParseMethod(method)
		if err != nil {
			fmt.Fprintf(os.Stderr, "-profile_out needs a standard -method: %v\n", err)
			os.Exit(2)
		}
		base, _ = domain.ProfileFor(m)
		if profileName == "" {
			profileName = string(m) + "Local"
		}
	}

	data, err := loadTimetable(timetablePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load timetable: %v\n", err)
		os.Exit(1)
	}
	rows, err := parseTimetable(strings.NewReader(string(data)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	params := url.Values{}
	for k, v := range map[string]string{"city": city, "lat": lat, "lon": lon, "method": method, "tz": tz, "asr": asr} {
		if v != "" {
			params.Set(k, v)
		}
	}

	results, err := compare(rows, func(date string) (map[domain.Prayer]int, error) {
		return fetchDay(requestURL(apiBase, params, date))
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Days compared: %d\n\n", len(rows))
	report(os.Stdout, results)
	fmt.Println("\nPositive adj means the published time is later than the API time.")

	if profileOut != "" {
		p, err := tunedProfile(base, profileName, results)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tuned profile: %v\n", err)
			os.Exit(1)
		}
		if err := writeProfile(profileOut, p); err != nil {
			fmt.Fprintf(os.Stderr, "write profile: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote profile %q to %s\n", p.Method, profileOut)
	}
}
