// Package main exports aircraft positions from a skysignal state
// database to KML. KML (Keyhole Markup Language) files can be viewed
// in Google Earth, Google Maps, and other mapping applications.
package main

import (
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string    `xml:"id,attr"`
	IconStyle IconStyle `xml:"IconStyle"`
}

// IconStyle defines how icons are displayed.
type IconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Icon  Icon    `xml:"Icon"`
}

// Icon specifies the icon image.
type Icon struct {
	Href string `xml:"href"`
}

// Placemark represents a geographic feature with geometry and metadata.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	Point        Point         `xml:"Point"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// Point is a geographic coordinate.
type Point struct {
	Coordinates string `xml:"coordinates"` // lon,lat[,alt]
}

// ExtendedData holds custom data fields.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data is one custom key/value pair.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// trackPoint mirrors the current_json column shape.
type trackPoint struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	AltitudeFt float64 `json:"altitude_ft"`
}

func main() {
	dbPath := flag.String("db", "skysignal.db", "Path to state database")
	outPath := flag.String("output", "", "Output KML file (default: stdout)")
	hours := flag.Int("hours", 6, "Include positions seen within the last N hours")
	military := flag.Bool("military", false, "Only export military aircraft")
	flag.Parse()

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	doc := Document{
		Name:        "SkySignal Aircraft",
		Description: fmt.Sprintf("Aircraft seen in the last %d hours", *hours),
		Styles: []Style{
			{ID: "aircraft", IconStyle: IconStyle{Scale: 1.0, Icon: Icon{
				Href: "http://maps.google.com/mapfiles/kml/shapes/airports.png"}}},
			{ID: "military", IconStyle: IconStyle{Scale: 1.2, Icon: Icon{
				Href: "http://maps.google.com/mapfiles/kml/shapes/target.png"}}},
		},
	}

	cutoff := time.Now().UTC().Add(-time.Duration(*hours) * time.Hour)

	query := `SELECT hex, flight, tail, aircraft_type, last_seen, current_json, military
	          FROM aircraft_tracks WHERE last_seen >= ? AND current_json IS NOT NULL`
	if *military {
		query += ` AND military = 1`
	}

	rows, err := db.Query(query, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query tracks: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	for rows.Next() {
		var hex, currentJSON string
		var flight, tail, acType sql.NullString
		var lastSeen time.Time
		var mil int
		if err := rows.Scan(&hex, &flight, &tail, &acType, &lastSeen, &currentJSON, &mil); err != nil {
			fmt.Fprintf(os.Stderr, "scan: %v\n", err)
			os.Exit(1)
		}

		var pt trackPoint
		if err := json.Unmarshal([]byte(currentJSON), &pt); err != nil {
			continue
		}

		name := flight.String
		if name == "" {
			name = hex
		}
		style := "#aircraft"
		if mil != 0 {
			style = "#military"
		}

		doc.Placemarks = append(doc.Placemarks, Placemark{
			Name:     name,
			StyleURL: style,
			Point: Point{
				Coordinates: fmt.Sprintf("%f,%f,%f", pt.Lon, pt.Lat, pt.AltitudeFt*0.3048),
			},
			ExtendedData: &ExtendedData{Data: []Data{
				{Name: "hex", Value: hex},
				{Name: "tail", Value: tail.String},
				{Name: "type", Value: acType.String},
				{Name: "last_seen", Value: lastSeen.UTC().Format(time.RFC3339)},
			}},
		})
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "rows: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	kml := KML{Namespace: "http://www.opengis.net/kml/2.2", Document: doc}
	fmt.Fprintln(out, xml.Header)
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	if err := enc.Encode(kml); err != nil {
		fmt.Fprintf(os.Stderr, "encode kml: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(os.Stderr, "Exported %d aircraft\n", len(doc.Placemarks))
}
