package main

import (
	"log"
	"os"

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

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig(core.Getwd())
	errAndDie(err)

	svcLogger := logsvc.NewRollbarLogger(logger, conf)
	svcLogger.Enable(!conf.Debug)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, svcLogger)
	}
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(conf, usrRepo, mailSvc)
	studySvc := study.NewService(sqlxrepos.NewStudyRepository(db))
	roadmapSvc := roadmap.NewService(sqlxrepos.NewRoadmapRepository(db), studySvc, aisvc.NewService(conf), svcLogger)
	alertSvc := alert.NewService(conf, sqlxrepos.NewAlertRepository(db), usrSvc, studySvc, roadmapSvc, mailSvc, svcLogger)

	// start CLI
	cli := commandLine{
		db:       db,
		usrRepo:  usrRepo,
		usrSvc:   usrSvc,
		studySvc: studySvc,
		alertSvc: alertSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
