package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"

	"github.com/w1xm/lx200_interface/lx200"
)

var (
	org    = flag.String("org", "w1xm", "InfluxDB organization")
	bucket = flag.String("bucket", "telescope.raw", "InfluxDB bucket")
)

func main() {
	flag.Parse()
	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Non-blocking write client.
	writeApi := client.WriteApi(*org, *bucket)
	defer writeApi.Close()
	errorsCh := writeApi.Errors()
	go func() {
		for err := range errorsCh {
			log.Printf("write error: %v", err)
		}
	}()
	for {
		if err := logData(writeApi); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

func statusFields(status lx200.Status) map[string]interface{} {
	return map[string]interface{}{
		"ra":         status.RA,
		"dec":        status.Dec,
		"alt":        status.Alt,
		"az":         status.Az,
		"slewing":    status.Slewing,
		"tracking":   status.Tracking,
		"parked":     status.Parked,
		"calibrated": status.Calibrated,
	}
}

func logData(writeApi api.WriteApi) error {
	url := os.Getenv("TELESCOPE_ADDRESS")
	if url == "" {
		url = "ws://localhost:8502/api/ws"
	}
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var status lx200.Status
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		p := influxdb2.NewPoint("telescope.status",
			map[string]string{
				"align_mode": status.AlignMode,
				"slew_rate":  status.SlewRate,
			},
			statusFields(status),
			time.Now(),
		)
		// Writes are asynchronous; errors surface on errorsCh.
		writeApi.WritePoint(p)
	}
}
