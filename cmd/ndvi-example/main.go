package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/twpayne/go-ndvi"
)

func run() error {
	dir := flag.String("dir", os.Getenv("NDVI_DIR"), "path to a local copy of landsat-pds")
	flag.Parse()

	if flag.NArg() != 3 {
		return errors.New("syntax: ndvi-example scene-id longitude latitude")
	}
	sceneID := flag.Arg(0)
	lon, err := strconv.ParseFloat(flag.Arg(1), 64)
	if err != nil {
		return err
	}
	lat, err := strconv.ParseFloat(flag.Arg(2), 64)
	if err != nil {
		return err
	}

	var options []ndvi.ServiceOption
	if *dir != "" {
		options = append(options, ndvi.WithSource(ndvi.NewFSSource(os.DirFS(*dir))))
	}
	service, err := ndvi.NewService(options...)
	if err != nil {
		return err
	}

	result, err := service.Point(context.Background(), sceneID, lon, lat)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s ndvi=%g cloud=%g\n", result.Scene, result.Date, result.NDVI, result.Cloud)

	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
