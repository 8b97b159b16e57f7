package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	. "github.com/mawazo/studytrack/apps/api/echo"
	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/alert"
	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
	emailsvc "github.com/mawazo/studytrack/services/email"
	logsvc "github.com/mawazo/studytrack/services/logger"
	inmemdb "github.com/mawazo/studytrack/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// templateGenerator forces roadmap generation onto the fallback template so
// API tests stay deterministic without an HTTP stub.
type templateGenerator struct{}

func (templateGenerator) GenerateRoadmap(_ context.Context, _ roadmap.GenerationRequest) (*roadmap.GeneratedRoadmap, error) {
	return nil, errors.New("generation disabled in tests")
}

type fixture struct {
	conf *core.Config
	app  Server

	usrRepo   user.Repository
	studyRepo study.Repository
	alertRepo alert.Repository

	usrSvc     *user.Service
	studySvc   *study.Service
	roadmapSvc *roadmap.Service
	alertSvc   *alert.Service
}

func setup(t *testing.T, gen roadmap.Generator) *fixture {
	t.Helper()

	conf := &core.Config{
		TestMode:        true,
		AppName:         "StudyTrack",
		SecretKey:       "s3cr3t",
		FrontendBaseURL: "http://localhost:3000",
		WorkDir:         core.Getwd(),
		Server: core.ServerConfig{
			JWTExpirationDelta:        1 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)

	// set up DB & repos
	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	studyRepo := inmemdb.NewStudyRepository(db)
	alertRepo := inmemdb.NewAlertRepository(db)

	// set up services
	emailsvc.ClearSentMessages()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(conf, usrRepo, mailSvc)
	studySvc := study.NewService(studyRepo)
	roadmapSvc := roadmap.NewService(inmemdb.NewRoadmapRepository(db), studySvc, gen, logger)
	alertSvc := alert.NewService(conf, alertRepo, usrSvc, studySvc, roadmapSvc, mailSvc, logger)

	// set up server
	app := NewServer(&Options{
		DisableReqLogs: true,
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		StudySvc:       studySvc,
		RoadmapSvc:     roadmapSvc,
		AlertSvc:       alertSvc,
	})

	return &fixture{
		conf:       conf,
		app:        app,
		usrRepo:    usrRepo,
		studyRepo:  studyRepo,
		alertRepo:  alertRepo,
		usrSvc:     usrSvc,
		studySvc:   studySvc,
		roadmapSvc: roadmapSvc,
		alertSvc:   alertSvc,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (f *fixture) getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(f.conf, usr)
	token, err := GenerateToken(f.conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

// nolint
func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if l1, ok := j1.([]interface{}); ok {
		if l2, ok := j2.([]interface{}); ok {
			return assert.ElementsMatch(t, l1, l2), nil
		}
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// decodeBody unmarshals the recorded response body into out.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response body: %v (%s)", err, rec.Body.String())
	}
}
