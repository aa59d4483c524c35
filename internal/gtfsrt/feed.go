// Package gtfsrt renders stored positions as a GTFS-Realtime VehiclePositions feed.
package gtfsrt

import (
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"github.com/frost-warsaw/frost/internal/model"
	"github.com/frost-warsaw/frost/internal/timestamp"
)

// Content types for the two encodings Marshal produces.
const (
	ContentTypeProto = "application/x-protobuf"
	ContentTypeText  = "text/plain; charset=utf-8"
)

// BuildFeed turns the latest position of each vehicle into a full-dataset
// feed. Positions without both coordinates are skipped. Observation times
// are read in the API's zone by parser.
func BuildFeed(positions []model.VehiclePosition, generated time.Time, parser *timestamp.Parser) *gtfs.FeedMessage {
	if parser == nil {
		parser = timestamp.NewParser()
	}

	entities := make([]*gtfs.FeedEntity, 0, len(positions))
	for _, p := range positions {
		if p.Lat == nil || p.Lon == nil || p.VehicleNumber == "" {
			continue
		}

		vp := &gtfs.VehiclePosition{
			Vehicle: &gtfs.VehicleDescriptor{
				Id:    proto.String(p.VehicleNumber),
				Label: proto.String(vehicleLabel(p)),
			},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(float32(*p.Lat)),
				Longitude: proto.Float32(float32(*p.Lon)),
			},
		}
		if p.Line != nil {
			vp.Trip = &gtfs.TripDescriptor{RouteId: proto.String(*p.Line)}
		}
		if ts, ok := parser.ParseTimestamp(p.ObservedAt); ok && ts.Unix() > 0 {
			vp.Timestamp = proto.Uint64(uint64(ts.Unix()))
		}

		entities = append(entities, &gtfs.FeedEntity{
			Id:      proto.String(p.VehicleNumber),
			Vehicle: vp,
		})
	}

	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(generated.Unix())),
		},
		Entity: entities,
	}
}

// Marshal encodes feed as binary protobuf, or as prototext when text is set.
func Marshal(feed *gtfs.FeedMessage, text bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if text {
		data, err = prototext.MarshalOptions{Multiline: true}.Marshal(feed)
	} else {
		data, err = proto.Marshal(feed)
	}
	if err != nil {
		return nil, fmt.Errorf("gtfsrt: marshal feed: %w", err)
	}
	return data, nil
}

// vehicleLabel is "line/brigade" when both are known, the vehicle number otherwise.
func vehicleLabel(p model.VehiclePosition) string {
	if p.Line != nil && p.Brigade != nil {
		return *p.Line + "/" + *p.Brigade
	}
	return p.VehicleNumber
}
