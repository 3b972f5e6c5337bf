// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

package leaderboard

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pudim-dev/pudim/internal/breaker"
	"github.com/pudim-dev/pudim/internal/cache"
	"github.com/pudim-dev/pudim/internal/metrics"
	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
	"github.com/pudim-dev/pudim/pkg/health"
	"github.com/pudim-dev/pudim/pkg/types"
)

// breakerDependency labels this store's breaker in metrics.
const breakerDependency = "leaderboard"

// scoreIndex is the secondary index serving score-ordered queries. Every
// item carries the same partition value so the index spans the table.
const (
	scoreIndex        = "score-index"
	scoreIndexPK      = "gsi1pk"
	scoreIndexPKValue = "SCORE"
)

// API is the narrow slice of the DynamoDB client the store uses.
// *dynamodb.Client satisfies it.
type API interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Config holds leaderboard store configuration.
type Config struct {
	// Enabled is the master switch. When false every operation is a no-op
	// returning an empty result.
	Enabled bool

	// Table is the score table name.
	Table string

	// Region is the AWS region.
	Region string

	// Endpoint overrides the service endpoint, for local stacks.
	Endpoint string

	// AccessKeyID and SecretAccessKey are optional static credentials;
	// when empty the default provider chain applies.
	AccessKeyID     string
	SecretAccessKey string

	// BreakerCooldown is how long the breaker stays open after a failure.
	BreakerCooldown time.Duration

	// Logger is the structured logger for the store.
	Logger *slog.Logger
}

// ConfigDefaults returns production defaults.
func ConfigDefaults() Config {
	return Config{
		Enabled:         true,
		Table:           "pudim-scores",
		Region:          "us-east-1",
		BreakerCooldown: breaker.DefaultCooldown,
		Logger:          slog.Default(),
	}
}

func applyDefaults(cfg *Config) {
	defaults := ConfigDefaults()
	if cfg.Table == "" {
		cfg.Table = defaults.Table
	}
	if cfg.Region == "" {
		cfg.Region = defaults.Region
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = defaults.BreakerCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
}

// DynamoStore is the DynamoDB-backed Store. The client and the table
// schema are provisioned lazily on first use and reused afterwards.
type DynamoStore struct {
	cfg     Config
	breaker *breaker.Breaker
	cache   *cache.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
	nowFunc func() time.Time

	mu          sync.Mutex
	api         API
	schemaReady bool
}

// Option customizes a DynamoStore.
type Option func(*DynamoStore)

// WithAPI overrides the DynamoDB client (for testing).
func WithAPI(api API) Option {
	return func(s *DynamoStore) { s.api = api }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *DynamoStore) { s.metrics = m }
}

// WithNowFunc overrides the record timestamp clock (for testing).
func WithNowFunc(fn func() time.Time) Option {
	return func(s *DynamoStore) { s.nowFunc = fn }
}

// New creates a DynamoStore in front of the given cache client. Nothing
// is provisioned until the first operation needs it.
func New(cfg Config, cacheClient *cache.Client, opts ...Option) (*DynamoStore, error) {
	applyDefaults(&cfg)

	br, err := breaker.New(cfg.BreakerCooldown)
	if err != nil {
		return nil, err
	}

	s := &DynamoStore{
		cfg:     cfg,
		breaker: br,
		cache:   cacheClient,
		logger:  cfg.Logger.With("component", "leaderboard-store"),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// connect builds the DynamoDB client once. Caller holds s.mu.
func (s *DynamoStore) connect(ctx context.Context) API {
	if s.api != nil {
		return s.api
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s.cfg.Region),
	}
	if s.cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		s.fail("connect", err)
		return nil
	}

	s.api = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		}
	})
	return s.api
}

// ensureSchema reports whether the score table is usable, creating it on
// first use. It is the availability gate for every operation: disabled
// store, open breaker, or a provisioning failure all mean "unavailable"
// and callers degrade to their empty result.
func (s *DynamoStore) ensureSchema(ctx context.Context) (API, bool) {
	if !s.cfg.Enabled {
		return nil, false
	}
	if s.breaker.IsOpen() {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	api := s.connect(ctx)
	if api == nil {
		return nil, false
	}
	if s.schemaReady {
		return api, true
	}

	_, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.cfg.Table),
	})
	if err == nil {
		s.schemaReady = true
		s.breaker.Close()
		return api, true
	}

	var notFound *ddbtypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		s.fail("describe-table", err)
		return nil, false
	}

	_, err = api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.cfg.Table),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("username"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("timestamp"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(scoreIndexPK), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("score"), AttributeType: ddbtypes.ScalarAttributeTypeN},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("username"), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String("timestamp"), KeyType: ddbtypes.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []ddbtypes.GlobalSecondaryIndex{{
			IndexName: aws.String(scoreIndex),
			KeySchema: []ddbtypes.KeySchemaElement{
				{AttributeName: aws.String(scoreIndexPK), KeyType: ddbtypes.KeyTypeHash},
				{AttributeName: aws.String("score"), KeyType: ddbtypes.KeyTypeRange},
			},
			Projection: &ddbtypes.Projection{ProjectionType: ddbtypes.ProjectionTypeAll},
		}},
	})
	if err != nil {
		// A concurrent creator winning the race is fine.
		var inUse *ddbtypes.ResourceInUseException
		if !errors.As(err, &inUse) {
			s.fail("create-table", err)
			return nil, false
		}
	} else {
		s.logger.Info("score table created", "table", s.cfg.Table)
	}

	s.schemaReady = true
	s.breaker.Close()
	return api, true
}

func (s *DynamoStore) fail(op string, err error) {
	s.breaker.Open()
	s.metrics.BreakerOpen(breakerDependency)
	s.logger.Warn("leaderboard operation failed, breaker opened",
		"operation", op,
		"table", s.cfg.Table,
		"error", err,
	)
}

// SaveScore persists a new score record. The write is skipped when the
// rounded score matches the user's latest record, so re-scoring an
// unchanged profile stays idempotent. A successful write triggers a
// detached statistics refresh.
func (s *DynamoStore) SaveScore(ctx context.Context, username string, scoreValue float64, rank types.Rank, stats *types.CachedStats, consent bool) error {
	api, ok := s.ensureSchema(ctx)
	if !ok {
		return nil
	}

	if latest := s.queryLatest(ctx, api, username); latest != nil &&
		math.Round(latest.Score) == math.Round(scoreValue) {
		s.logger.Debug("score unchanged, skipping write", "username", username)
		return nil
	}

	record := types.ScoreRecord{
		Username:           username,
		Timestamp:          s.nowFunc().UTC().Format(TimestampLayout),
		Score:              scoreValue,
		Rank:               rank,
		Stats:              stats,
		LeaderboardConsent: consent,
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return pudimerr.Wrap(err, pudimerr.CodeStoreWriteFailure,
			"serializing score record", pudimerr.FieldUsername(username))
	}
	item[scoreIndexPK] = &ddbtypes.AttributeValueMemberS{Value: scoreIndexPKValue}

	if _, err := api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.Table),
		Item:      item,
	}); err != nil {
		s.fail("put-item", err)
		return pudimerr.Wrap(err, pudimerr.CodeStoreWriteFailure,
			"saving score record",
			pudimerr.FieldUsername(username), pudimerr.FieldTable(s.cfg.Table))
	}

	s.breaker.Close()
	go s.refreshStatistics(context.WithoutCancel(ctx))
	return nil
}

// UpdateConsent flips the consent flag on the user's latest record in
// place. A user with no records is a no-op.
func (s *DynamoStore) UpdateConsent(ctx context.Context, username string, consent bool) error {
	api, ok := s.ensureSchema(ctx)
	if !ok {
		return nil
	}

	latest := s.queryLatest(ctx, api, username)
	if latest == nil {
		return nil
	}

	if _, err := api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.cfg.Table),
		Key: map[string]ddbtypes.AttributeValue{
			"username":  &ddbtypes.AttributeValueMemberS{Value: latest.Username},
			"timestamp": &ddbtypes.AttributeValueMemberS{Value: latest.Timestamp},
		},
		UpdateExpression: aws.String("SET leaderboardConsent = :c"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":c": &ddbtypes.AttributeValueMemberBOOL{Value: consent},
		},
	}); err != nil {
		s.fail("update-item", err)
		return pudimerr.Wrap(err, pudimerr.CodeStoreWriteFailure,
			"updating leaderboard consent",
			pudimerr.FieldUsername(username), pudimerr.FieldTable(s.cfg.Table))
	}

	s.breaker.Close()
	go s.refreshStatistics(context.WithoutCancel(ctx))
	return nil
}

// GetLatestScore returns the user's newest record, or nil.
func (s *DynamoStore) GetLatestScore(ctx context.Context, username string) *types.ScoreRecord {
	api, ok := s.ensureSchema(ctx)
	if !ok {
		return nil
	}
	return s.queryLatest(ctx, api, username)
}

func (s *DynamoStore) queryLatest(ctx context.Context, api API, username string) *types.ScoreRecord {
	records := s.queryUser(ctx, api, username, 1)
	if len(records) == 0 {
		return nil
	}
	return &records[0]
}

// queryUser returns up to limit records for a username, newest first.
func (s *DynamoStore) queryUser(ctx context.Context, api API, username string, limit int) []types.ScoreRecord {
	out, err := api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.cfg.Table),
		KeyConditionExpression: aws.String("#u = :u"),
		ExpressionAttributeNames: map[string]string{
			"#u": "username",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":u": &ddbtypes.AttributeValueMemberS{Value: username},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		s.fail("query", err)
		return nil
	}
	s.breaker.Close()

	records := make([]types.ScoreRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var rec types.ScoreRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			s.logger.Warn("skipping undecodable score record",
				"operation", "query", "username", username, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

// GetScoreHistory returns up to limit records for the user, newest first.
func (s *DynamoStore) GetScoreHistory(ctx context.Context, username string, limit int) []types.ScoreRecord {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	api, ok := s.ensureSchema(ctx)
	if !ok {
		return []types.ScoreRecord{}
	}

	records := s.queryUser(ctx, api, username, limit)
	if records == nil {
		return []types.ScoreRecord{}
	}
	return records
}

// GetTopScores returns the consented leaderboard: one entry per username
// (latest record wins, usernames compared case-insensitively), sorted by
// score descending.
func (s *DynamoStore) GetTopScores(ctx context.Context, limit int) []types.TopScoreEntry {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	api, ok := s.ensureSchema(ctx)
	if !ok {
		return []types.TopScoreEntry{}
	}

	records, ok := s.scanAll(ctx, api)
	if !ok {
		return []types.TopScoreEntry{}
	}

	latest := latestPerUser(records)

	entries := make([]types.TopScoreEntry, 0, len(latest))
	for _, rec := range latest {
		if !rec.LeaderboardConsent {
			continue
		}
		entry := types.TopScoreEntry{
			Username:  rec.Username,
			Timestamp: rec.Timestamp,
			Score:     rec.Score,
			Rank:      rec.Rank,
		}
		if rec.Stats != nil {
			entry.AvatarURL = rec.Stats.AvatarURL
			entry.Followers = rec.Stats.Followers
			entry.TotalStars = rec.Stats.TotalStars
			entry.PublicRepos = rec.Stats.PublicRepos
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Username < entries[j].Username
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// GetStatistics returns the aggregate summary, preferring the cached
// copy. A fresh computation is written back to the cache detached.
func (s *DynamoStore) GetStatistics(ctx context.Context) types.AggregateStatistics {
	if cached := s.cache.GetStatistics(ctx); cached != nil {
		return *cached
	}

	stats, ok := s.computeStatistics(ctx)
	if ok {
		snapshot := stats
		go s.cache.SetStatistics(context.WithoutCancel(ctx), &snapshot)
	}
	return stats
}

// refreshStatistics recomputes the aggregate summary and overwrites the
// cached copy, so readers after a write see fresh numbers without a
// scan on their path.
func (s *DynamoStore) refreshStatistics(ctx context.Context) {
	stats, ok := s.computeStatistics(ctx)
	if !ok {
		return
	}
	s.cache.SetStatistics(ctx, &stats)
}

// computeStatistics scans the full table and reduces it. Totals count
// every record; the histograms, unique-user count, and average use each
// user's latest record only. The second return reports whether the scan
// succeeded; on failure the zeroed summary is returned.
func (s *DynamoStore) computeStatistics(ctx context.Context) (types.AggregateStatistics, bool) {
	stats := types.AggregateStatistics{
		RankCounts:     map[string]int{},
		LanguageCounts: map[string]int{},
	}

	api, ok := s.ensureSchema(ctx)
	if !ok {
		return stats, false
	}

	records, ok := s.scanAll(ctx, api)
	if !ok {
		return stats, false
	}

	for _, rec := range records {
		stats.TotalRecords++
		if rec.LeaderboardConsent {
			stats.ConsentedRecords++
		}
	}

	latest := latestPerUser(records)
	stats.UniqueUsers = len(latest)

	var scoreSum float64
	for _, rec := range latest {
		scoreSum += rec.Score
		if rec.Rank.Code != "" {
			stats.RankCounts[rec.Rank.Code]++
		}
		if rec.Stats == nil {
			continue
		}
		for _, lang := range rec.Stats.Languages {
			stats.LanguageCounts[lang.Name]++
		}
	}
	if len(latest) > 0 {
		stats.AverageScore = math.Round(scoreSum/float64(len(latest))*100) / 100
	}
	return stats, true
}

// scanAll pages through the full table.
func (s *DynamoStore) scanAll(ctx context.Context, api API) ([]types.ScoreRecord, bool) {
	var records []types.ScoreRecord
	var startKey map[string]ddbtypes.AttributeValue

	for {
		out, err := api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.cfg.Table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			s.fail("scan", err)
			return nil, false
		}

		for _, item := range out.Items {
			var rec types.ScoreRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				s.logger.Warn("skipping undecodable score record",
					"operation", "scan", "error", err)
				continue
			}
			records = append(records, rec)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	s.breaker.Close()
	return records, true
}

// latestPerUser keeps the record with the greatest timestamp per
// username, usernames normalized by trimming and lowercasing.
func latestPerUser(records []types.ScoreRecord) map[string]types.ScoreRecord {
	latest := make(map[string]types.ScoreRecord)
	for _, rec := range records {
		key := strings.ToLower(strings.TrimSpace(rec.Username))
		if key == "" {
			continue
		}
		if current, ok := latest[key]; !ok || rec.Timestamp > current.Timestamp {
			latest[key] = rec
		}
	}
	return latest
}

// BreakerMetrics returns a snapshot of the store's breaker state.
func (s *DynamoStore) BreakerMetrics() health.Metrics {
	return s.breaker.Metrics()
}
