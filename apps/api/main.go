package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/mawazo/studytrack/apps/api/echo"
	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/alert"
	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
	aisvc "github.com/mawazo/studytrack/services/ai"
	emailsvc "github.com/mawazo/studytrack/services/email"
	logsvc "github.com/mawazo/studytrack/services/logger"
	"github.com/mawazo/studytrack/storage/database"
	"github.com/mawazo/studytrack/storage/database/sqlxrepos"
)

const shutdownTimeout = 20 * time.Second

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig(core.Getwd())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrSvc := user.NewService(conf, sqlxrepos.NewUserRepository(db), mailSvc)
	studySvc := study.NewService(sqlxrepos.NewStudyRepository(db))
	roadmapSvc := roadmap.NewService(
		sqlxrepos.NewRoadmapRepository(db),
		studySvc,
		aisvc.NewService(conf),
		logger,
	)
	alertSvc := alert.NewService(
		conf,
		sqlxrepos.NewAlertRepository(db),
		usrSvc,
		studySvc,
		roadmapSvc,
		mailSvc,
		logger,
	)

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(
		&echoapi.Options{
			Address:    conf.Server.Address(),
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			StudySvc:   studySvc,
			RoadmapSvc: roadmapSvc,
			AlertSvc:   alertSvc,
		},
	)

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
