package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/govindnetworks/siodb/config"
	"github.com/govindnetworks/siodb/iomgr"
)

func main() {
	os.Exit(run())
}

func run() int {
	var instanceName string
	var help bool

	flags := flag.NewFlagSet("siodb_iomgr", flag.ContinueOnError)
	flags.StringVar(&instanceName, "instance", "", "Instance name")
	flags.StringVar(&instanceName, "i", "", "Instance name (shorthand)")
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

	options, err := config.LoadInstanceOptions(instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	service, err := iomgr.New(options)
	if err != nil {
		log.Errorf("iomgr: cannot initialize database engine: %v", err)
		return 4
	}

	ln, err := service.Listen()
	if err != nil {
		log.Errorf("iomgr: cannot listen: %v", err)
		return 4
	}
	go service.Serve(ln)

	if err := service.CreateInitializationFlagFile(); err != nil {
		log.Errorf("iomgr: cannot create initialization flag file: %v", err)
		return 4
	}
	log.Infof("iomgr: instance '%s' is ready on %s", instanceName, ln.Addr())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	sig := <-ch
	log.Infof("iomgr: shutting down due to signal %v", sig)

	service.RemoveInitializationFlagFile()
	service.Stop()
	return 0
}
