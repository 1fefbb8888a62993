// snapshot-recovery rebuilds config_snapshots rows from archived snapshot files
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/dustin/go-humanize"

	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/snapshot"
)

var (
	dryRun    = flag.Bool("dry-run", false, "Report what would be recovered without writing")
	verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	scanLocal = flag.Bool("local", true, "Scan the local snapshot directory")
	scanS3    = flag.Bool("s3", true, "Scan the S3 snapshot prefix")
)

// archivedFile is a snapshot file found in storage
type archivedFile struct {
	Key         string // archive key without any storage prefix
	Source      string
	Path        string // file path or full object key
	Size        int64
	Device      string
	CollectedAt time.Time
	ShortSHA    string
}

type snapshotStore interface {
	ArchiveKeys() (map[string]bool, error)
	CreateSnapshots(snapshots []*dbmeta.ConfigSnapshot) error
}

type deviceLookup interface {
	GetDevicesByNames(names []string) (map[string]dbmeta.Device, error)
}

// fetchFunc reads the content of an archived file
type fetchFunc func(ctx context.Context, f archivedFile) ([]byte, error)

type summary struct {
	Found         int
	AlreadyKnown  int
	UnknownDevice int
	FetchFailed   int
	Recovered     int
	Bytes         int64
}

func main() {
	flag.Parse()

	config.LoadConfiguration()

	db, err := dbmeta.Connect(config.CFG.MetadataDB)
	if err != nil {
		log.Fatalf("Failed to connect to metadata database: %v", err)
	}
	if err := dbmeta.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx := context.Background()
	log.Println("Starting snapshot recovery...")

	var files []archivedFile
	fetchers := map[string]fetchFunc{}

	if *scanLocal && config.CFG.Local.Enabled {
		localFiles, err := scanLocalStorage(config.CFG.Local.SnapshotDirectory)
		if err != nil {
			log.Printf("Error scanning local storage: %v", err)
		}
		files = append(files, localFiles...)
		fetchers["local"] = readLocalFile
		log.Printf("Found %d snapshot files in local storage", len(localFiles))
	}

	if *scanS3 && config.CFG.S3.Enabled {
		svc, err := newS3Service(config.CFG.S3)
		if err != nil {
			log.Fatalf("Failed to create S3 session: %v", err)
		}
		s3Files, err := scanS3Storage(svc, config.CFG.S3.Bucket, config.CFG.S3.Prefix)
		if err != nil {
			log.Printf("Error listing S3 objects: %v", err)
		}
		files = append(files, s3Files...)
		fetchers["s3"] = s3Fetcher(svc, config.CFG.S3.Bucket)
		log.Printf("Found %d snapshot objects in S3", len(s3Files))
	}

	fetch := func(ctx context.Context, f archivedFile) ([]byte, error) {
		fn, ok := fetchers[f.Source]
		if !ok {
			return nil, fmt.Errorf("no reader for %s", f.Source)
		}
		return fn(ctx, f)
	}

	sum, err := recoverSnapshots(ctx, dbmeta.NewSnapshotRepository(db), dbmeta.NewDeviceRepository(db), files, fetch, *dryRun)
	if err != nil {
		log.Fatalf("Recovery failed: %v", err)
	}

	log.Printf("\nRecovery Summary:")
	log.Printf("- Snapshot files found: %d", sum.Found)
	log.Printf("- Already recorded: %d", sum.AlreadyKnown)
	log.Printf("- Skipped (unknown device): %d", sum.UnknownDevice)
	log.Printf("- Unreadable: %d", sum.FetchFailed)
	log.Printf("- Recovered: %d (%s)", sum.Recovered, humanize.Bytes(uint64(sum.Bytes)))
	if *dryRun {
		log.Println("Dry run completed - no changes were saved")
	}
}

// archiveKeyOf strips any storage prefix in front of by-device/
func archiveKeyOf(key string) string {
	if i := strings.Index(key, "by-device/"); i > 0 {
		return key[i:]
	}
	return key
}

func parseFile(source, path, key string, size int64) (archivedFile, bool) {
	device, at, short, ok := snapshot.ParseArchiveKey(key)
	if !ok {
		if *verbose {
			log.Printf("Skipping file with non-standard name: %s", key)
		}
		return archivedFile{}, false
	}
	return archivedFile{
		Key:         archiveKeyOf(key),
		Source:      source,
		Path:        path,
		Size:        size,
		Device:      device,
		CollectedAt: at,
		ShortSHA:    short,
	}, true
}

// scanLocalStorage walks the snapshot directory for archived files
func scanLocalStorage(root string) ([]archivedFile, error) {
	var files []archivedFile
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if *verbose {
				log.Printf("Error accessing path %s: %v", path, err)
			}
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".cfg") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if f, ok := parseFile("local", path, filepath.ToSlash(rel), info.Size()); ok {
			files = append(files, f)
		}
		return nil
	})
	return files, err
}

func readLocalFile(ctx context.Context, f archivedFile) ([]byte, error) {
	return os.ReadFile(f.Path)
}

func newS3Service(cfg config.S3Config) (*s3.S3, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.DisableSSL = aws.Bool(!cfg.UseSSL)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

// scanS3Storage lists archived snapshot objects below prefix
func scanS3Storage(svc *s3.S3, bucket, prefix string) ([]archivedFile, error) {
	var files []archivedFile
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(strings.TrimPrefix(prefix, "/")),
	}
	err := svc.ListObjectsV2Pages(params, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !strings.HasSuffix(key, ".cfg") {
				continue
			}
			if f, ok := parseFile("s3", key, key, aws.Int64Value(obj.Size)); ok {
				files = append(files, f)
			}
		}
		return true
	})
	return files, err
}

func s3Fetcher(svc *s3.S3, bucket string) fetchFunc {
	return func(ctx context.Context, f archivedFile) ([]byte, error) {
		out, err := svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(f.Path),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	}
}

// recoverSnapshots inserts a snapshot row for every archived file whose key
// is not recorded yet. Files of devices missing from the inventory are skipped.
func recoverSnapshots(ctx context.Context, snapshots snapshotStore, devices deviceLookup, files []archivedFile, fetch fetchFunc, dryRun bool) (summary, error) {
	sum := summary{}

	known, err := snapshots.ArchiveKeys()
	if err != nil {
		return sum, err
	}

	// local copies win over S3 copies of the same key
	sort.SliceStable(files, func(i, j int) bool { return files[i].Source == "local" && files[j].Source != "local" })
	seen := map[string]bool{}
	var pending []archivedFile
	nameSet := map[string]bool{}
	for _, f := range files {
		if seen[f.Key] {
			continue
		}
		seen[f.Key] = true
		sum.Found++
		if known[f.Key] {
			sum.AlreadyKnown++
			continue
		}
		pending = append(pending, f)
		nameSet[f.Device] = true
	}
	if len(pending) == 0 {
		return sum, nil
	}

	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}
	byName, err := devices.GetDevicesByNames(names)
	if err != nil {
		return sum, err
	}

	var rows []*dbmeta.ConfigSnapshot
	for _, f := range pending {
		dev, ok := byName[f.Device]
		if !ok {
			sum.UnknownDevice++
			if *verbose {
				log.Printf("Skipping %s: device %s is not in the inventory", f.Key, f.Device)
			}
			continue
		}

		content, err := fetch(ctx, f)
		if err != nil {
			sum.FetchFailed++
			log.Printf("Failed to read %s from %s: %v", f.Key, f.Source, err)
			continue
		}
		sha := snapshot.Checksum(string(content))
		if !strings.HasPrefix(sha, f.ShortSHA) {
			log.Printf("Warning: %s content hash %s does not match its name", f.Key, sha[:8])
		}

		rows = append(rows, &dbmeta.ConfigSnapshot{
			DeviceID:      dev.ID,
			DeviceName:    dev.Name,
			ConfigType:    "running",
			Content:       string(content),
			ContentSHA256: sha,
			Bytes:         int64(len(content)),
			ArchiveKey:    f.Key,
			CreatedBy:     "snapshot-recovery",
			CollectedAt:   f.CollectedAt,
		})
		sum.Recovered++
		sum.Bytes += int64(len(content))
		if *verbose || dryRun {
			log.Printf("Recovering %s (%s, %s)", f.Key, f.Source, humanize.Bytes(uint64(len(content))))
		}
	}

	if dryRun || len(rows) == 0 {
		return sum, nil
	}
	if err := snapshots.CreateSnapshots(rows); err != nil {
		return sum, err
	}
	return sum, nil
}
