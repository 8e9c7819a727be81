package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/intermernet/clubportal/internal/auth"
	"github.com/intermernet/clubportal/internal/config"
	"github.com/intermernet/clubportal/internal/database"
	"github.com/intermernet/clubportal/internal/importer"
	"github.com/intermernet/clubportal/internal/realtime"
)

type testEnv struct {
	srv    *httptest.Server
	db     *database.Service
	broker *realtime.Broker
	tokens map[database.Role]string
	ids    map[database.Role]int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	frontend, _ := url.Parse("https://portal.example.org")
	cfg := &config.Config{
		JwtSecret:         "test-secret",
		FrontendURL:       frontend.String(),
		ParsedFrontendURL: frontend,
		Settings:          config.DefaultSettings(),
		Location:          loc,
	}

	db, err := database.NewService(filepath.Join(t.TempDir(), "club.db"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	env := &testEnv{
		db:     db,
		broker: realtime.NewBroker(),
		tokens: make(map[database.Role]string),
		ids:    make(map[database.Role]int64),
	}
	for i, role := range []database.Role{database.RoleMember, database.RoleCoach, database.RoleBoard, database.RoleAdmin} {
		m, err := db.SaveMember(context.Background(), &database.Member{
			FirstName: "Test",
			LastName:  string(role),
			Email:     sql.NullString{String: string(role) + "@example.org", Valid: true},
			Role:      role,
			Status:    database.StatusActive,
			City:      "Ort " + string(rune('A'+i)),
		})
		if err != nil {
			t.Fatalf("SaveMember: %v", err)
		}
		tok, err := auth.GenerateJWT(m.ID, role, cfg.JwtSecret)
		if err != nil {
			t.Fatalf("GenerateJWT: %v", err)
		}
		env.tokens[role] = tok
		env.ids[role] = m.ID
	}

	server := NewServer(cfg, db, env.broker, nil, nil)
	router := chi.NewRouter()
	server.RegisterRoutes(router)
	env.srv = httptest.NewServer(router)
	t.Cleanup(env.srv.Close)
	return env
}

// do sends a JSON request as role ("" for anonymous) and decodes the body
// into out when it is non-nil.
func (e *testEnv) do(t *testing.T, role database.Role, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, e.srv.URL+"/api/v1"+path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[role])
	}
	return e.send(t, req, out)
}

func (e *testEnv) send(t *testing.T, req *http.Request, out interface{}) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", req.Method, req.URL.Path, err)
		}
	}
	return resp.StatusCode
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	hash, err := auth.HashPassword("geheim123")
	if err != nil {
		t.Fatal(err)
	}
	err = env.db.Write(context.Background(), func(tx *sql.Tx) error {
		return env.db.SetMemberPassword(context.Background(), tx, env.ids[database.RoleCoach], hash)
	})
	if err != nil {
		t.Fatal(err)
	}

	var ok struct {
		Token  string         `json:"token"`
		Member MemberResponse `json:"member"`
	}
	code := env.do(t, "", "POST", "/members/login", loginPayload{Email: "COACH@example.org", Password: "geheim123"}, &ok)
	if code != http.StatusOK {
		t.Fatalf("login status = %d", code)
	}
	claims, err := auth.ValidateJWT(ok.Token, "test-secret")
	if err != nil || claims.Role != database.RoleCoach {
		t.Errorf("token claims = %+v, %v", claims, err)
	}
	if ok.Member.Email == nil || *ok.Member.Email != "coach@example.org" {
		t.Errorf("member = %+v", ok.Member)
	}

	if code := env.do(t, "", "POST", "/members/login", loginPayload{Email: "coach@example.org", Password: "falsch123"}, nil); code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", code)
	}
	if code := env.do(t, "", "POST", "/members/login", loginPayload{Email: "member@example.org", Password: "whatever1"}, nil); code != http.StatusUnauthorized {
		t.Errorf("no password status = %d", code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	if code := env.do(t, "", "GET", "/members", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous roster status = %d", code)
	}
	req, _ := http.NewRequest("GET", env.srv.URL+"/api/v1/members/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	if code := env.send(t, req, nil); code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", code)
	}
	if code := env.do(t, "", "GET", "/auth/google/login", nil, nil); code != http.StatusNotFound {
		t.Errorf("disabled google login status = %d", code)
	}
	if code := env.do(t, "", "GET", "/pages/verein", nil, nil); code != http.StatusNotFound {
		t.Errorf("disabled cms status = %d", code)
	}
}

func TestCapabilities(t *testing.T) {
	env := newTestEnv(t)
	event := eventPayload{Title: "Training", StartAt: "2025-01-06T18:00", Category: database.CategoryTraining}

	tests := []struct {
		role   database.Role
		method string
		path   string
		body   interface{}
		want   int
	}{
		{database.RoleMember, "POST", "/events", event, http.StatusForbidden},
		{database.RoleCoach, "POST", "/events", event, http.StatusCreated},
		{database.RoleCoach, "POST", "/members", memberPayload{}, http.StatusForbidden},
		{database.RoleCoach, "GET", "/imports", nil, http.StatusForbidden},
		{database.RoleBoard, "GET", "/imports", nil, http.StatusOK},
		{database.RoleMember, "GET", "/stats?from=2025-01-01&to=2025-12-31", nil, http.StatusOK},
	}
	for _, tt := range tests {
		if code := env.do(t, tt.role, tt.method, tt.path, tt.body, nil); code != tt.want {
			t.Errorf("%s %s %s = %d, want %d", tt.role, tt.method, tt.path, code, tt.want)
		}
	}
}

func TestRosterVisibility(t *testing.T) {
	env := newTestEnv(t)
	hidden := true
	first, last := "Verena", "Verborgen"
	var created struct {
		Member MemberResponse `json:"member"`
	}
	code := env.do(t, database.RoleBoard, "POST", "/members", memberPayload{FirstName: &first, LastName: &last, Hidden: &hidden}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}

	var list struct {
		Members []MemberResponse `json:"members"`
	}
	env.do(t, database.RoleMember, "GET", "/members", nil, &list)
	if len(list.Members) != 4 {
		t.Errorf("member sees %d members, want 4", len(list.Members))
	}
	for _, m := range list.Members {
		if m.Email != nil {
			t.Errorf("member sees contact data of %d", m.ID)
		}
	}
	env.do(t, database.RoleAdmin, "GET", "/members", nil, &list)
	if len(list.Members) != 5 {
		t.Errorf("admin sees %d members, want 5", len(list.Members))
	}

	admin := database.RoleAdmin
	if code := env.do(t, database.RoleBoard, "PATCH", "/members/"+itoa(created.Member.ID), memberPayload{Role: &admin}, nil); code != http.StatusForbidden {
		t.Errorf("board granting admin status = %d", code)
	}
}

func TestCalendarAndExceptions(t *testing.T) {
	env := newTestEnv(t)
	var created struct {
		Event EventResponse `json:"event"`
	}
	code := env.do(t, database.RoleCoach, "POST", "/events", eventPayload{
		Title:      "Training",
		StartAt:    "2024-12-02T18:00",
		Category:   database.CategoryTraining,
		Recurrence: database.RecurrenceWeekly,
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	id := itoa(created.Event.ID)

	if code := env.do(t, database.RoleCoach, "POST", "/events/"+id+"/exceptions", exceptionPayload{Date: "2025-01-13"}, nil); code != http.StatusOK {
		t.Fatalf("add exception status = %d", code)
	}

	var cal struct {
		Occurrences []struct {
			Key   string    `json:"key"`
			Start time.Time `json:"start"`
		} `json:"occurrences"`
	}
	if code := env.do(t, "", "GET", "/calendar?from=2025-01-01&to=2025-01-31", nil, &cal); code != http.StatusOK {
		t.Fatalf("calendar status = %d", code)
	}
	if len(cal.Occurrences) != 3 {
		t.Fatalf("occurrences = %d, want 3 (6th, 20th, 27th)", len(cal.Occurrences))
	}
	if !strings.HasSuffix(cal.Occurrences[0].Key, "-2025-01-06T17:00:00Z") {
		t.Errorf("first key = %q", cal.Occurrences[0].Key)
	}

	if code := env.do(t, database.RoleCoach, "DELETE", "/events/"+id+"/exceptions/2025-01-13", nil, nil); code != http.StatusOK {
		t.Fatalf("remove exception status = %d", code)
	}
	env.do(t, "", "GET", "/calendar?from=2025-01-01&to=2025-01-31", nil, &cal)
	if len(cal.Occurrences) != 4 {
		t.Errorf("occurrences after restore = %d, want 4", len(cal.Occurrences))
	}

	if code := env.do(t, "", "GET", "/calendar?from=2025-02-01&to=2025-01-01", nil, nil); code != http.StatusBadRequest {
		t.Errorf("inverted window status = %d", code)
	}

	resp, err := http.Get(env.srv.URL + "/api/v1/calendar.ics?from=2025-01-01&to=2025-01-31")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("ics content type = %q", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if n := strings.Count(buf.String(), "BEGIN:VEVENT"); n != 4 {
		t.Errorf("ics events = %d, want 4", n)
	}
}

func TestExceptionsOnSingleEvent(t *testing.T) {
	env := newTestEnv(t)
	var created struct {
		Event EventResponse `json:"event"`
	}
	env.do(t, database.RoleCoach, "POST", "/events", eventPayload{
		Title: "Sommerfest", StartAt: "2025-07-05T15:00", Category: database.CategoryParty,
	}, &created)
	code := env.do(t, database.RoleCoach, "POST", "/events/"+itoa(created.Event.ID)+"/exceptions", exceptionPayload{Date: "2025-07-05"}, nil)
	if code != http.StatusConflict {
		t.Errorf("exception on single event status = %d, want 409", code)
	}
}

func TestAttendance(t *testing.T) {
	env := newTestEnv(t)
	_, stream := env.broker.AddClient(env.ids[database.RoleAdmin])
	var created struct {
		Event EventResponse `json:"event"`
	}
	env.do(t, database.RoleCoach, "POST", "/events", eventPayload{
		Title: "Spiel", StartAt: "2025-03-01T15:00", Category: database.CategoryMatch,
	}, &created)
	<-stream
	eid := itoa(created.Event.ID)
	self := itoa(env.ids[database.RoleMember])
	other := itoa(env.ids[database.RoleBoard])

	put := attendancePayload{Status: database.AttendanceActive}
	if code := env.do(t, database.RoleMember, "PUT", "/events/"+eid+"/attendance/"+self, put, nil); code != http.StatusOK {
		t.Errorf("own attendance status = %d", code)
	}
	if code := env.do(t, database.RoleMember, "PUT", "/events/"+eid+"/attendance/"+other, put, nil); code != http.StatusForbidden {
		t.Errorf("other attendance as member status = %d", code)
	}
	if code := env.do(t, database.RoleCoach, "PUT", "/events/"+eid+"/attendance/"+other, attendancePayload{Status: database.AttendanceExcused}, nil); code != http.StatusOK {
		t.Errorf("other attendance as coach status = %d", code)
	}
	if code := env.do(t, database.RoleCoach, "PUT", "/events/"+eid+"/attendance/"+other, attendancePayload{Status: "maybe"}, nil); code != http.StatusBadRequest {
		t.Errorf("bad status = %d", code)
	}
	select {
	case raw := <-stream:
		if !strings.Contains(string(raw), realtime.TypeAttendanceUpdated) {
			t.Errorf("notification = %s", raw)
		}
	default:
		t.Error("no attendance notification")
	}

	var list struct {
		Attendance []database.Attendance `json:"attendance"`
	}
	env.do(t, database.RoleMember, "GET", "/events/"+eid+"/attendance", nil, &list)
	if len(list.Attendance) != 2 {
		t.Errorf("records = %d, want 2", len(list.Attendance))
	}

	result := matchResultPayload{
		Opponent: "FC Nachbarort", ScoreHome: 2, ScoreAway: 1,
		Goals:  []database.Goal{{MemberID: env.ids[database.RoleCoach], Goals: 2}},
		Lineup: []int64{env.ids[database.RoleAdmin]},
	}
	if code := env.do(t, database.RoleCoach, "POST", "/events/"+eid+"/results", result, nil); code != http.StatusCreated {
		t.Fatalf("result status = %d", code)
	}
	env.do(t, database.RoleMember, "GET", "/events/"+eid+"/attendance", nil, &list)
	if len(list.Attendance) != 4 {
		t.Errorf("records after result = %d, want 4", len(list.Attendance))
	}
}

func TestHiddenMembersCannotBeRecorded(t *testing.T) {
	env := newTestEnv(t)
	hidden, err := env.db.SaveMember(context.Background(), &database.Member{
		FirstName: "Alt", LastName: "Mitglied", Role: database.RoleMember,
		Status: database.StatusLeft, Hidden: true,
	})
	if err != nil {
		t.Fatalf("SaveMember: %v", err)
	}
	var created struct {
		Event EventResponse `json:"event"`
	}
	env.do(t, database.RoleCoach, "POST", "/events", eventPayload{
		Title: "Spiel", StartAt: "2025-03-08T15:00", Category: database.CategoryMatch,
	}, &created)
	eid := itoa(created.Event.ID)

	put := attendancePayload{Status: database.AttendanceActive}
	if code := env.do(t, database.RoleCoach, "PUT", "/events/"+eid+"/attendance/"+itoa(hidden.ID), put, nil); code != http.StatusNotFound {
		t.Errorf("attendance for hidden member status = %d, want 404", code)
	}

	for name, result := range map[string]matchResultPayload{
		"lineup": {Opponent: "SV Ost", ScoreHome: 1, Lineup: []int64{env.ids[database.RoleCoach], hidden.ID}},
		"scorer": {Opponent: "SV Ost", ScoreHome: 1, Goals: []database.Goal{{MemberID: hidden.ID, Goals: 1}}},
	} {
		if code := env.do(t, database.RoleCoach, "POST", "/events/"+eid+"/results", result, nil); code != http.StatusBadRequest {
			t.Errorf("%s with hidden member status = %d, want 400", name, code)
		}
	}

	var results struct {
		Results []database.MatchResult `json:"results"`
	}
	env.do(t, database.RoleMember, "GET", "/events/"+eid+"/results", nil, &results)
	if len(results.Results) != 0 {
		t.Errorf("results = %d, want 0", len(results.Results))
	}
	var list struct {
		Attendance []database.Attendance `json:"attendance"`
	}
	env.do(t, database.RoleMember, "GET", "/events/"+eid+"/attendance", nil, &list)
	if len(list.Attendance) != 0 {
		t.Errorf("records = %d, want 0", len(list.Attendance))
	}
}

func TestImportAttendance(t *testing.T) {
	env := newTestEnv(t)
	csv := "Vorname;Nachname;01.02.2025;08.02.2025\nTest;member;MT;x\nTest;coach;Spieler;-\nNie;Gesehen;x;x\n"

	upload := func(role database.Role) (int, map[string]json.RawMessage) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, _ := mw.CreateFormFile("file", "februar.csv")
		fw.Write([]byte(csv))
		mw.Close()
		req, _ := http.NewRequest("POST", env.srv.URL+"/api/v1/imports/attendance", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+env.tokens[role])
		out := map[string]json.RawMessage{}
		code := env.send(t, req, &out)
		return code, out
	}

	if code, _ := upload(database.RoleCoach); code != http.StatusForbidden {
		t.Errorf("coach import status = %d", code)
	}
	code, out := upload(database.RoleBoard)
	if code != http.StatusOK {
		t.Fatalf("import status = %d: %s", code, out["error"])
	}
	var sum struct {
		EventsCreated   int      `json:"eventsCreated"`
		RecordsWritten  int      `json:"recordsWritten"`
		MembersNotFound int      `json:"membersNotFound"`
		NotFoundNames   []string `json:"notFoundNames"`
	}
	json.Unmarshal(out["summary"], &sum)
	if sum.EventsCreated != 2 || sum.RecordsWritten != 4 || sum.MembersNotFound != 1 {
		t.Errorf("summary = %+v", sum)
	}

	var cal struct {
		Occurrences []struct {
			Title    string            `json:"title"`
			Category database.Category `json:"category"`
		} `json:"occurrences"`
	}
	env.do(t, "", "GET", "/calendar?from=2025-02-01&to=2025-02-01", nil, &cal)
	if len(cal.Occurrences) != 1 || cal.Occurrences[0].Title != "Spiel" || cal.Occurrences[0].Category != database.CategoryMatch {
		t.Errorf("imported event = %+v", cal.Occurrences)
	}

	upload(database.RoleBoard)
	var history struct {
		Imports []database.ImportRun `json:"imports"`
	}
	env.do(t, database.RoleBoard, "GET", "/imports", nil, &history)
	if len(history.Imports) != 2 {
		t.Errorf("import runs = %d, want 2", len(history.Imports))
	}
	env.do(t, "", "GET", "/calendar?from=2025-02-01&to=2025-02-28", nil, &cal)
	if len(cal.Occurrences) != 2 {
		t.Errorf("events after second import = %d, want 2", len(cal.Occurrences))
	}
}

func TestImportFailedStatus(t *testing.T) {
	s := &Server{}
	for _, tc := range []struct {
		err  error
		want int
	}{
		{importer.ErrNoDateColumns, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %w", importer.ErrNoDateColumns, importer.ErrEmptyFile), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: last name", importer.ErrMissingNameColumns), http.StatusUnprocessableEntity},
		{fmt.Errorf("parse csv: %w", &csv.ParseError{Line: 3, Err: csv.ErrQuote}), http.StatusUnprocessableEntity},
		{fmt.Errorf("read csv: %w", io.ErrUnexpectedEOF), http.StatusBadRequest},
		{fmt.Errorf("import: load roster: %w", errors.New("database is locked")), http.StatusInternalServerError},
	} {
		rec := httptest.NewRecorder()
		s.importFailed(rec, tc.err)
		if rec.Code != tc.want {
			t.Errorf("%v -> %d, want %d", tc.err, rec.Code, tc.want)
		}
		if tc.want == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "locked") {
			t.Errorf("store error leaked: %s", rec.Body.String())
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
