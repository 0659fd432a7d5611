// Package dynamodb is the production Repository implementation, backed by
// one single-purpose DynamoDB table per entity: jobs, feature sets (with
// their job-status links embedded as a JSON blob attribute), stores, and
// sources (keyed by their canonicalized business key, which is what makes
// FindCanonicalSource a single GetItem).
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/egabancho/feast/internal/coordinator/domain"
	"github.com/egabancho/feast/pkg/config"
	ferrors "github.com/egabancho/feast/pkg/errors"
)

// API is the subset of the DynamoDB client the repository depends on, so
// tests can inject a fake.
//
//counterfeiter:generate . API
type API interface {
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, input *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, input *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Repository implements repository.Repository against DynamoDB.
type Repository struct {
	client           API
	jobsTable        string
	featureSetsTable string
	storesTable      string
	sourcesTable     string
}

// New builds a Repository from configuration, loading AWS credentials the
// standard SDK way (environment, shared config, IMDS).
func New(ctx context.Context, cfg config.DynamoDBConfig) (*Repository, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, ferrors.WrapRepositoryError("loadAWSConfig", err)
	}

	var client *dynamodb.Client
	if cfg.Endpoint != "" {
		client = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	} else {
		client = dynamodb.NewFromConfig(awsCfg)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient builds a Repository with an injected client, for tests.
func NewWithClient(client API, cfg config.DynamoDBConfig) *Repository {
	return &Repository{
		client:           client,
		jobsTable:        cfg.JobsTable,
		featureSetsTable: cfg.FeatureSetsTable,
		storesTable:      cfg.StoresTable,
		sourcesTable:     cfg.SourcesTable,
	}
}

// jobToItem flattens a domain.Job into its DynamoDB attribute map. The
// sourceConfigKey attribute carries the canonicalized (type, config) key
// used by the business-key lookups.
func jobToItem(job domain.Job) (map[string]types.AttributeValue, error) {
	sourceConfig, err := json.Marshal(job.Source.Config)
	if err != nil {
		return nil, err
	}
	storeConfig, err := json.Marshal(job.Store.Config)
	if err != nil {
		return nil, err
	}

	return map[string]types.AttributeValue{
		"jobId":            &types.AttributeValueMemberS{Value: job.ID},
		"extId":            &types.AttributeValueMemberS{Value: job.ExtID},
		"runner":           &types.AttributeValueMemberS{Value: string(job.Runner)},
		"status":           &types.AttributeValueMemberS{Value: string(job.Status)},
		"sourceId":         &types.AttributeValueMemberS{Value: job.Source.ID},
		"sourceType":       &types.AttributeValueMemberS{Value: string(job.Source.Type)},
		"sourceConfigKey":  &types.AttributeValueMemberS{Value: job.Key().SourceConfig},
		"sourceConfigJson": &types.AttributeValueMemberS{Value: string(sourceConfig)},
		"storeName":        &types.AttributeValueMemberS{Value: job.Store.Name},
		"storeConfigJson":  &types.AttributeValueMemberS{Value: string(storeConfig)},
		"featureSets":      stringListAttribute(job.FeatureSet),
		"updatedSeq":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", job.UpdatedSeq)},
	}, nil
}

func itemToJob(av map[string]types.AttributeValue) (domain.Job, error) {
	var job domain.Job

	job.ID = stringAttr(av, "jobId")
	job.ExtID = stringAttr(av, "extId")
	job.Runner = domain.Runner(stringAttr(av, "runner"))
	job.Status = domain.JobStatus(stringAttr(av, "status"))
	job.Source.ID = stringAttr(av, "sourceId")
	job.Source.Type = domain.SourceType(stringAttr(av, "sourceType"))
	job.Store.Name = stringAttr(av, "storeName")
	job.FeatureSet = stringListAttr(av, "featureSets")

	if err := json.Unmarshal([]byte(stringAttr(av, "sourceConfigJson")), &job.Source.Config); err != nil && stringAttr(av, "sourceConfigJson") != "" {
		return domain.Job{}, ferrors.WrapRepositoryError("unmarshal sourceConfig", err)
	}
	if err := json.Unmarshal([]byte(stringAttr(av, "storeConfigJson")), &job.Store.Config); err != nil && stringAttr(av, "storeConfigJson") != "" {
		return domain.Job{}, ferrors.WrapRepositoryError("unmarshal storeConfig", err)
	}

	if n, ok := av["updatedSeq"].(*types.AttributeValueMemberN); ok {
		fmt.Sscanf(n.Value, "%d", &job.UpdatedSeq)
	}

	return job, nil
}

func stringAttr(av map[string]types.AttributeValue, key string) string {
	if v, ok := av[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func stringListAttr(av map[string]types.AttributeValue, key string) []string {
	v, ok := av[key].(*types.AttributeValueMemberL)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v.Value))
	for _, item := range v.Value {
		if s, ok := item.(*types.AttributeValueMemberS); ok {
			out = append(out, s.Value)
		}
	}
	return out
}

func stringListAttribute(values []string) *types.AttributeValueMemberL {
	l := &types.AttributeValueMemberL{}
	for _, v := range values {
		l.Value = append(l.Value, &types.AttributeValueMemberS{Value: v})
	}
	return l
}

func (r *Repository) SaveAllJobs(ctx context.Context, jobs []domain.Job) error {
	const batchSize = 25

	for i := 0; i < len(jobs); i += batchSize {
		end := i + batchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		if err := r.writeJobBatch(ctx, jobs[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) writeJobBatch(ctx context.Context, jobs []domain.Job) error {
	requests := make([]types.WriteRequest, 0, len(jobs))
	// UpdatedSeq is assigned here so FindLatestNonTerminalJob can tell the
	// most recently saved job apart from older ones with the same key.
	seq := time.Now().UnixNano()
	for i, job := range jobs {
		job.UpdatedSeq = seq + int64(i)
		item, err := jobToItem(job)
		if err != nil {
			return ferrors.WrapRepositoryError("marshal job", err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	// Items DynamoDB reports back as unprocessed are resubmitted until none
	// remain.
	pending := map[string][]types.WriteRequest{r.jobsTable: requests}
	for len(pending) > 0 {
		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return ferrors.WrapRepositoryError("saveAllJobs", err)
		}
		pending = out.UnprocessedItems
	}
	return nil
}

func (r *Repository) FindJobsByStatus(ctx context.Context, status domain.JobStatus) ([]domain.Job, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.jobsTable),
		FilterExpression: aws.String("#s = :status"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	if err != nil {
		return nil, ferrors.WrapRepositoryError("findJobsByStatus", err)
	}

	jobs := make([]domain.Job, 0, len(out.Items))
	for _, item := range out.Items {
		job, err := itemToJob(item)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *Repository) FindJob(ctx context.Context, jobID string) (*domain.Job, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.jobsTable),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, ferrors.WrapRepositoryError("findJob", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	job, err := itemToJob(out.Item)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repository) FindLatestNonTerminalJob(ctx context.Context, sourceType domain.SourceType, sourceConfig string, storeName string) (*domain.Job, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.jobsTable),
		FilterExpression: aws.String("sourceType = :st AND sourceConfigKey = :sc AND storeName = :sn"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: string(sourceType)},
			":sc": &types.AttributeValueMemberS{Value: sourceConfig},
			":sn": &types.AttributeValueMemberS{Value: storeName},
		},
	})
	if err != nil {
		return nil, ferrors.WrapRepositoryError("findLatestNonTerminalJob", err)
	}

	var latest *domain.Job
	for _, item := range out.Items {
		job, err := itemToJob(item)
		if err != nil {
			continue
		}
		if job.Status.IsTerminal() {
			continue
		}
		if latest == nil || job.UpdatedSeq > latest.UpdatedSeq {
			cp := job
			latest = &cp
		}
	}
	return latest, nil
}

// sourceKeyAttr is the partition key of the sources table: the
// canonicalized (type, config) business key. Keying by business key makes
// the earliest-persisted record the only record, so canonicalization is a
// single GetItem.
func sourceKeyAttr(sourceType domain.SourceType, config map[string]string) string {
	return domain.Source{Type: sourceType, Config: config}.Key().String()
}

func sourceToItem(source domain.Source) (map[string]types.AttributeValue, error) {
	configJSON, err := json.Marshal(source.Config)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"sourceKey":  &types.AttributeValueMemberS{Value: sourceKeyAttr(source.Type, source.Config)},
		"sourceId":   &types.AttributeValueMemberS{Value: source.ID},
		"sourceType": &types.AttributeValueMemberS{Value: string(source.Type)},
		"configJson": &types.AttributeValueMemberS{Value: string(configJSON)},
	}, nil
}

func itemToSource(av map[string]types.AttributeValue) (domain.Source, error) {
	source := domain.Source{
		ID:   stringAttr(av, "sourceId"),
		Type: domain.SourceType(stringAttr(av, "sourceType")),
	}
	if s := stringAttr(av, "configJson"); s != "" {
		if err := json.Unmarshal([]byte(s), &source.Config); err != nil {
			return domain.Source{}, ferrors.WrapRepositoryError("unmarshal source config", err)
		}
	}
	return source, nil
}

func (r *Repository) SaveSource(ctx context.Context, source domain.Source) (domain.Source, error) {
	if source.ID == "" {
		source.ID = sourceKeyAttr(source.Type, source.Config)
	}

	item, err := sourceToItem(source)
	if err != nil {
		return domain.Source{}, ferrors.WrapRepositoryError("marshal source", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.sourcesTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sourceKey)"),
	})
	if err == nil {
		return source, nil
	}

	var conditionFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &conditionFailed) {
		return domain.Source{}, ferrors.WrapRepositoryError("saveSource", err)
	}

	// A record for this business key already exists: it is the canonical
	// one, so return it unchanged.
	return r.FindCanonicalSource(ctx, source.Type, source.Config)
}

func (r *Repository) FindCanonicalSource(ctx context.Context, sourceType domain.SourceType, config map[string]string) (domain.Source, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.sourcesTable),
		Key: map[string]types.AttributeValue{
			"sourceKey": &types.AttributeValueMemberS{Value: sourceKeyAttr(sourceType, config)},
		},
	})
	if err != nil {
		return domain.Source{}, ferrors.WrapRepositoryError("findCanonicalSource", err)
	}
	if out.Item == nil {
		return domain.Source{}, ferrors.WrapRepositoryError("findCanonicalSource", ferrors.ErrRepositoryUnavailable)
	}
	return itemToSource(out.Item)
}

// featureSetToItem flattens a domain.FeatureSet into its DynamoDB attribute
// map, with the spec and job-status links embedded as JSON blobs.
func featureSetToItem(fs domain.FeatureSet) (map[string]types.AttributeValue, error) {
	specJSON, err := json.Marshal(fs.Spec)
	if err != nil {
		return nil, err
	}
	jobsJSON, err := json.Marshal(fs.Jobs)
	if err != nil {
		return nil, err
	}
	sourceConfigJSON, err := json.Marshal(fs.Source.Config)
	if err != nil {
		return nil, err
	}

	return map[string]types.AttributeValue{
		"reference":        &types.AttributeValueMemberS{Value: fs.Reference()},
		"project":          &types.AttributeValueMemberS{Value: fs.Project},
		"name":             &types.AttributeValueMemberS{Value: fs.Name},
		"version":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", fs.Version)},
		"status":           &types.AttributeValueMemberS{Value: string(fs.Status)},
		"sourceId":         &types.AttributeValueMemberS{Value: fs.Source.ID},
		"sourceType":       &types.AttributeValueMemberS{Value: string(fs.Source.Type)},
		"sourceConfigJson": &types.AttributeValueMemberS{Value: string(sourceConfigJSON)},
		"specJson":         &types.AttributeValueMemberS{Value: string(specJSON)},
		"jobsJson":         &types.AttributeValueMemberS{Value: string(jobsJSON)},
	}, nil
}

func itemToFeatureSet(av map[string]types.AttributeValue) (domain.FeatureSet, error) {
	var fs domain.FeatureSet
	fs.Project = stringAttr(av, "project")
	fs.Name = stringAttr(av, "name")
	fs.Status = domain.FeatureSetStatus(stringAttr(av, "status"))
	fs.Source.ID = stringAttr(av, "sourceId")
	fs.Source.Type = domain.SourceType(stringAttr(av, "sourceType"))

	if n, ok := av["version"].(*types.AttributeValueMemberN); ok {
		fmt.Sscanf(n.Value, "%d", &fs.Version)
	}
	if s := stringAttr(av, "sourceConfigJson"); s != "" {
		if err := json.Unmarshal([]byte(s), &fs.Source.Config); err != nil {
			return domain.FeatureSet{}, ferrors.WrapRepositoryError("unmarshal sourceConfig", err)
		}
	}
	if s := stringAttr(av, "specJson"); s != "" {
		if err := json.Unmarshal([]byte(s), &fs.Spec); err != nil {
			return domain.FeatureSet{}, ferrors.WrapRepositoryError("unmarshal spec", err)
		}
	}
	if s := stringAttr(av, "jobsJson"); s != "" {
		if err := json.Unmarshal([]byte(s), &fs.Jobs); err != nil {
			return domain.FeatureSet{}, ferrors.WrapRepositoryError("unmarshal jobs", err)
		}
	}
	return fs, nil
}

func (r *Repository) SaveFeatureSet(ctx context.Context, fs domain.FeatureSet) error {
	item, err := featureSetToItem(fs)
	if err != nil {
		return ferrors.WrapRepositoryError("marshal feature set", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.featureSetsTable),
		Item:      item,
	})
	if err != nil {
		return ferrors.WrapRepositoryError("saveFeatureSet", err)
	}
	return nil
}

func (r *Repository) FindFeatureSet(ctx context.Context, project, name string) (*domain.FeatureSet, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.featureSetsTable),
		Key: map[string]types.AttributeValue{
			"reference": &types.AttributeValueMemberS{Value: project + "/" + name},
		},
	})
	if err != nil {
		return nil, ferrors.WrapRepositoryError("findFeatureSet", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	fs, err := itemToFeatureSet(out.Item)
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

func (r *Repository) FindFeatureSetsByStatus(ctx context.Context, status domain.FeatureSetStatus) ([]domain.FeatureSet, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.featureSetsTable),
		FilterExpression: aws.String("#s = :status"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	if err != nil {
		return nil, ferrors.WrapRepositoryError("findFeatureSetsByStatus", err)
	}

	result := make([]domain.FeatureSet, 0, len(out.Items))
	for _, item := range out.Items {
		fs, err := itemToFeatureSet(item)
		if err != nil {
			continue
		}
		result = append(result, fs)
	}
	return result, nil
}

func (r *Repository) ListFeatureSets(ctx context.Context, projectGlob, nameGlob string) ([]domain.FeatureSet, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(r.featureSetsTable)})
	if err != nil {
		return nil, ferrors.WrapRepositoryError("listFeatureSets", err)
	}

	sub := domain.Subscription{ProjectGlob: projectGlob, NameGlob: nameGlob}
	result := make([]domain.FeatureSet, 0)
	for _, item := range out.Items {
		fs, err := itemToFeatureSet(item)
		if err != nil {
			continue
		}
		if sub.Matches(fs.Project, fs.Name) {
			result = append(result, fs)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func storeToItem(store domain.Store) (map[string]types.AttributeValue, error) {
	configJSON, err := json.Marshal(store.Config)
	if err != nil {
		return nil, err
	}
	subsJSON, err := json.Marshal(store.Subscriptions)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"storeName":         &types.AttributeValueMemberS{Value: store.Name},
		"configJson":        &types.AttributeValueMemberS{Value: string(configJSON)},
		"subscriptionsJson": &types.AttributeValueMemberS{Value: string(subsJSON)},
	}, nil
}

func itemToStore(av map[string]types.AttributeValue) (domain.Store, error) {
	store := domain.Store{Name: stringAttr(av, "storeName")}
	if s := stringAttr(av, "configJson"); s != "" {
		if err := json.Unmarshal([]byte(s), &store.Config); err != nil {
			return domain.Store{}, ferrors.WrapRepositoryError("unmarshal store config", err)
		}
	}
	if s := stringAttr(av, "subscriptionsJson"); s != "" {
		if err := json.Unmarshal([]byte(s), &store.Subscriptions); err != nil {
			return domain.Store{}, ferrors.WrapRepositoryError("unmarshal store subscriptions", err)
		}
	}
	return store, nil
}

func (r *Repository) SaveStore(ctx context.Context, store domain.Store) error {
	item, err := storeToItem(store)
	if err != nil {
		return ferrors.WrapRepositoryError("marshal store", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.storesTable),
		Item:      item,
	})
	if err != nil {
		return ferrors.WrapRepositoryError("saveStore", err)
	}
	return nil
}

func (r *Repository) ListStores(ctx context.Context) ([]domain.Store, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(r.storesTable)})
	if err != nil {
		return nil, ferrors.WrapRepositoryError("listStores", err)
	}

	result := make([]domain.Store, 0, len(out.Items))
	for _, item := range out.Items {
		store, err := itemToStore(item)
		if err != nil {
			continue
		}
		result = append(result, store)
	}
	return result, nil
}
