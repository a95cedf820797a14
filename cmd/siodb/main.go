package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/govindnetworks/siodb/config"
	"github.com/govindnetworks/siodb/server"
)

const daemonEnvMarker = "SIODB_DAEMONIZED"

func main() {
	os.Exit(run())
}

func run() int {
	var instanceName string
	var daemon bool
	var help bool

	flags := flag.NewFlagSet("siodb", flag.ContinueOnError)
	flags.StringVar(&instanceName, "instance", "", "Instance name")
	flags.StringVar(&instanceName, "i", "", "Instance name (shorthand)")
	flags.BoolVar(&daemon, "daemon", false, "Run as daemon")
	flags.BoolVar(&daemon, "d", false, "Run as daemon (shorthand)")
	flags.BoolVar(&help, "help", false, "Produce help message")
	flags.BoolVar(&help, "h", false, "Produce help message (shorthand)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return 1
	}
	if help {
		flags.PrintDefaults()
		return 0
	}
	if instanceName == "" {
		fmt.Fprintln(os.Stderr, "error: instance name is not specified")
		return 1
	}

	if daemon && os.Getenv(daemonEnvMarker) == "" {
		if err := daemonize(); err != nil {
			fmt.Fprintf(os.Stderr, "error: daemonization failed: %v\n", err)
			return 3
		}
		return 0
	}

	options, err := config.LoadInstanceOptions(instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	initLogging(options)

	lock, err := server.AcquireInstanceLock(options.General.DataDir)
	if err != nil {
		log.Errorf("siodb: %v", err)
		return 4
	}
	defer lock.Release()

	log.Infof("siodb: waiting for iomgr initialization")
	if err := server.WaitForIOMgr(options.General.DataDir, func() bool { return true }); err != nil {
		log.Errorf("siodb: %v", err)
		return 4
	}

	srv := server.NewServer(options)
	ln, err := srv.Listen()
	if err != nil {
		log.Errorf("siodb: cannot listen: %v", err)
		return 4
	}
	go srv.Serve(ln)
	log.Infof("siodb: instance '%s' is accepting connections on %s", instanceName, ln.Addr())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	sig := <-ch
	log.Infof("siodb: shutting down due to signal %v", sig)

	srv.Stop()
	return 0
}

// daemonize re-executes the server detached from the controlling terminal.
func daemonize() error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devNull.Close()

	cmd := exec.Command(executable, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnvMarker+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd.Start()
}

func initLogging(options *config.InstanceOptions) {
	level := log.Linfo
	for _, channel := range options.LogChannels {
		switch channel.Severity {
		case "trace", "debug":
			level = log.Ldebug
		case "warning":
			level = log.Lwarn
		case "error":
			level = log.Lerror
		}
		break
	}
	log.SetOutputLevel(level)
}
