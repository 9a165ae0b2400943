package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/maclab-sync/internal/models"
	"github.com/noah-isme/maclab-sync/internal/remote"
	"github.com/noah-isme/maclab-sync/internal/service"
	"github.com/noah-isme/maclab-sync/pkg/config"
)

// Compares the occupant derived straight from the remote collections with the
// one a running lab-sync instance serves, and reports per-collection health.

type collectionReport struct {
	Name     string
	Kind     models.CollectionKind
	Count    int
	Err      error
	Duration time.Duration
}

type localEnvelope struct {
	Data *models.OccupantSubject `json:"data"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var (
		remoteBase string
		localBase  string
		at         string
		timeout    time.Duration
	)
	flag.StringVar(&remoteBase, "remote-base", cfg.Remote.BaseURL, "Lab API base URL")
	flag.StringVar(&localBase, "local-base", fmt.Sprintf("http://localhost:%d%s", cfg.Port, cfg.APIPrefix), "lab-sync API base URL")
	flag.StringVar(&at, "at", "", "Evaluation instant (RFC3339), defaults to now")
	flag.DurationVar(&timeout, "timeout", cfg.Remote.Timeout, "HTTP client timeout")
	flag.Parse()

	now := time.Now()
	if at != "" {
		if now, err = time.Parse(time.RFC3339, at); err != nil {
			log.Fatalf("invalid -at: %v", err)
		}
	}
	now = now.In(cfg.Sync.Location())

	remoteCfg := cfg.Remote
	remoteCfg.BaseURL = strings.TrimRight(remoteBase, "/")
	remoteCfg.Timeout = timeout
	client := remote.NewClient(remoteCfg, nil, zap.NewNop())
	ctx := context.Background()

	var reports []collectionReport
	subjects := measure(&reports, models.CollectionSubjects, func() models.CollectionResult[models.Subject] { return client.FetchSubjects(ctx) })
	instructors := measure(&reports, models.CollectionInstructors, func() models.CollectionResult[models.Instructor] { return client.FetchInstructors(ctx) })
	links := measure(&reports, models.CollectionLinks, func() models.CollectionResult[models.Link] { return client.FetchLinks(ctx) })
	measure(&reports, models.CollectionEnrollments, func() models.CollectionResult[models.StudentWithSubjects] { return client.FetchStudentEnrollments(ctx) })

	derived := service.BuildDerivedMaps(subjects.Items(), instructors.Items(), links.Items())
	occupying, parseErr := service.Occupying(subjects.Items(), now)
	var expected *models.OccupantSubject
	if merged := derived.Merge(occupying); len(merged) > 0 {
		expected = &merged[0]
	}

	served, localErr := fetchLocal(&http.Client{Timeout: timeout}, localBase)

	failures := printReport(reports, now, parseErr, expected, served, localErr)
	if failures > 0 {
		os.Exit(1)
	}
}

func measure[T any](reports *[]collectionReport, name string, fetch func() models.CollectionResult[T]) models.CollectionResult[T] {
	start := time.Now()
	res := fetch()
	*reports = append(*reports, collectionReport{
		Name:     name,
		Kind:     res.Kind,
		Count:    len(res.Items()),
		Err:      res.Err,
		Duration: time.Since(start),
	})
	return res
}

func fetchLocal(client *http.Client, base string) (*models.OccupantSubject, error) {
	resp, err := client.Get(strings.TrimRight(base, "/") + "/occupancy/current")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var env localEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return env.Data, nil
}

func printReport(reports []collectionReport, now time.Time, parseErr error, expected, served *models.OccupantSubject, localErr error) int {
	failures := 0
	fmt.Println("Occupancy Probe Report")
	fmt.Println("======================")
	fmt.Printf("Evaluated at %s (%s)\n", now.Format(time.RFC3339), now.Weekday())
	for _, r := range reports {
		fmt.Printf("[%s] %s: %d records (%s)\n", strings.ToUpper(r.Kind.String()), r.Name, r.Count, r.Duration)
		if r.Err != nil {
			fmt.Printf("  Error: %v\n", r.Err)
			failures++
		}
	}
	if parseErr != nil {
		fmt.Printf("Malformed subject times:\n  %v\n", strings.ReplaceAll(parseErr.Error(), "\n", "\n  "))
	}

	fmt.Printf("Expected occupant: %s\n", describe(expected))
	if localErr != nil {
		fmt.Printf("Served occupant: unavailable (%v)\n", localErr)
		return failures + 1
	}
	fmt.Printf("Served occupant: %s\n", describe(served))

	match := (expected == nil && served == nil) ||
		(expected != nil && served != nil && expected.ID == served.ID && expected.InstructorName == served.InstructorName)
	fmt.Printf("Occupant match: %t\n", match)
	if !match {
		failures++
	}
	return failures
}

func describe(o *models.OccupantSubject) string {
	if o == nil {
		return "vacant"
	}
	return fmt.Sprintf("%s %s (%s-%s) by %s", o.ID, o.Name, o.StartTime, o.EndTime, o.InstructorName)
}
