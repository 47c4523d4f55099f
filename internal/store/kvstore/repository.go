package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
	"cedrus/internal/store"
)

// Repository is the DynamoDB single-table store.Store implementation.
type Repository struct {
	table  string
	client Client
}

// New constructs a kvstore-backed repository against the given table.
func New(table string, client Client) *Repository {
	return &Repository{table: table, client: client}
}

// item is the generic envelope every row is marshaled through: PK/SK plus a
// JSON-encoded Body, so each collection keeps its own Go type without a
// DynamoDB attribute per field.
type item struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK,omitempty"`
	Body      string `dynamodbav:"Body"`
	UpdatedAt string `dynamodbav:"UpdatedAt,omitempty"`
}

func putItem[T any](ctx context.Context, r *Repository, pk, sk, gsi1 string, v T) error {
	body, err := json.Marshal(v)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "encode item", err)
	}
	av, err := attributevalue.MarshalMap(item{PK: pk, SK: sk, GSI1PK: gsi1, Body: string(body), UpdatedAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "marshal item", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(r.table), Item: av})
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "put item", err)
	}
	return nil
}

func getItem[T any](ctx context.Context, r *Repository, pk, sk string) (T, bool, error) {
	var zero T
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]ddbtypes.AttributeValue{
			attrPK: &ddbtypes.AttributeValueMemberS{Value: pk},
			attrSK: &ddbtypes.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return zero, false, cedruserr.Wrap(cedruserr.KindStorage, "get item", err)
	}
	if out.Item == nil {
		return zero, false, nil
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return zero, false, cedruserr.Wrap(cedruserr.KindStorage, "unmarshal item", err)
	}
	var v T
	if err := json.Unmarshal([]byte(it.Body), &v); err != nil {
		return zero, false, cedruserr.Wrap(cedruserr.KindStorage, "decode body", err)
	}
	return v, true, nil
}

func deleteItem(ctx context.Context, r *Repository, pk, sk string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key: map[string]ddbtypes.AttributeValue{
			attrPK: &ddbtypes.AttributeValueMemberS{Value: pk},
			attrSK: &ddbtypes.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "delete item", err)
	}
	return nil
}

// queryPrefix returns every item under pk whose sort key begins with prefix.
func (r *Repository) queryPrefix(ctx context.Context, pk, prefix string) ([]item, error) {
	var out []item
	var exclusiveStart map[string]ddbtypes.AttributeValue
	for {
		res, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.table),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk":     &ddbtypes.AttributeValueMemberS{Value: pk},
				":prefix": &ddbtypes.AttributeValueMemberS{Value: prefix},
			},
			ExclusiveStartKey: exclusiveStart,
		})
		if err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "query", err)
		}
		var page []item
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "unmarshal query page", err)
		}
		out = append(out, page...)
		if res.LastEvaluatedKey == nil {
			break
		}
		exclusiveStart = res.LastEvaluatedKey
	}
	return out, nil
}

func (r *Repository) batchDelete(ctx context.Context, keys []map[string]ddbtypes.AttributeValue) error {
	for _, chunk := range store.Chunk(keys, 25) {
		reqs := make([]ddbtypes.WriteRequest, len(chunk))
		for i, k := range chunk {
			reqs[i] = ddbtypes.WriteRequest{DeleteRequest: &ddbtypes.DeleteRequest{Key: k}}
		}
		_, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]ddbtypes.WriteRequest{r.table: reqs},
		})
		if err != nil {
			return cedruserr.Wrap(cedruserr.KindStorage, "batch delete", err)
		}
	}
	return nil
}

// --- Project ---

type projectBody struct {
	ID        string                          `json:"id"`
	Name      string                          `json:"name"`
	APIKey    string                          `json:"api_key"`
	Owner     model.EntityUid                 `json:"owner"`
	Roles     map[string]map[string]struct{}  `json:"roles"`
	CreatedAt time.Time                       `json:"created_at"`
}

func (r *Repository) ProjectLoad(ctx context.Context, id string) (model.Project, error) {
	pk := projectPK(id)
	body, ok, err := getItem[projectBody](ctx, r, pk, skProject(id))
	if err != nil {
		return model.Project{}, err
	}
	if !ok {
		return model.Project{}, cedruserr.ErrNotFound
	}
	return fromProjectBody(body), nil
}

func fromProjectBody(b projectBody) model.Project {
	return model.Project{ID: b.ID, Name: b.Name, APIKey: b.APIKey, Owner: b.Owner, Roles: b.Roles, CreatedAt: b.CreatedAt, UpdatedAt: b.CreatedAt}
}

func (r *Repository) ProjectList(ctx context.Context) ([]model.Project, error) {
	// Projects are scattered across distinct partitions by design (one per
	// project id), so listing queries the base table's "PROJECTS" registry
	// partition, which ProjectSave writes on every save.
	items, err := r.queryPrefix(ctx, "PROJECTS", "")
	if err != nil {
		return nil, err
	}
	out := make([]model.Project, 0, len(items))
	for _, it := range items {
		var b projectBody
		if err := json.Unmarshal([]byte(it.Body), &b); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "decode project", err)
		}
		out = append(out, fromProjectBody(b))
	}
	return out, nil
}

func (r *Repository) ProjectSave(ctx context.Context, p model.Project, expectedUpdatedAt *time.Time) error {
	pk := projectPK(p.ID)
	sk := skProject(p.ID)
	b := projectBody{ID: p.ID, Name: p.Name, APIKey: p.APIKey, Owner: p.Owner, Roles: p.Roles, CreatedAt: p.CreatedAt}
	body, err := json.Marshal(b)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "encode project", err)
	}
	av, err := attributevalue.MarshalMap(item{PK: pk, SK: sk, Body: string(body), UpdatedAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "marshal project", err)
	}

	input := &dynamodb.PutItemInput{TableName: aws.String(r.table), Item: av}
	if expectedUpdatedAt != nil {
		input.ConditionExpression = aws.String("UpdatedAt = :expected")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":expected": &ddbtypes.AttributeValueMemberS{Value: expectedUpdatedAt.UTC().Format(time.RFC3339)},
		}
	}
	if _, err := r.client.PutItem(ctx, input); err != nil {
		var condFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return cedruserr.ErrConflict
		}
		return cedruserr.Wrap(cedruserr.KindStorage, "save project", err)
	}
	// Mirror into the registry partition so ProjectList can query it directly.
	return putItem(ctx, r, "PROJECTS", "P#"+p.ID, "", b)
}

func (r *Repository) ProjectRemove(ctx context.Context, id string) error {
	pk := projectPK(id)
	items, err := r.queryPrefix(ctx, pk, "")
	if err != nil {
		return err
	}
	keys := make([]map[string]ddbtypes.AttributeValue, 0, len(items)+1)
	for _, it := range items {
		keys = append(keys, map[string]ddbtypes.AttributeValue{
			attrPK: &ddbtypes.AttributeValueMemberS{Value: it.PK},
			attrSK: &ddbtypes.AttributeValueMemberS{Value: it.SK},
		})
	}
	keys = append(keys, map[string]ddbtypes.AttributeValue{
		attrPK: &ddbtypes.AttributeValueMemberS{Value: "PROJECTS"},
		attrSK: &ddbtypes.AttributeValueMemberS{Value: "P#" + id},
	})
	return r.batchDelete(ctx, keys)
}

// --- IdentitySource ---

func (r *Repository) IdentitySourceLoad(ctx context.Context, projectID string) (model.IdentitySource, bool, error) {
	return getItem[model.IdentitySource](ctx, r, projectPK(projectID), skIdentitySource(projectID))
}

func (r *Repository) IdentitySourceSave(ctx context.Context, projectID string, src model.IdentitySource) error {
	return putItem(ctx, r, projectPK(projectID), skIdentitySource(projectID), "", src)
}

func (r *Repository) IdentitySourceRemove(ctx context.Context, projectID string) error {
	return deleteItem(ctx, r, projectPK(projectID), skIdentitySource(projectID))
}

// --- Schema ---

func (r *Repository) SchemaLoad(ctx context.Context, projectID string) (model.Schema, bool, error) {
	return getItem[model.Schema](ctx, r, projectPK(projectID), skSchema(projectID))
}

func (r *Repository) SchemaSave(ctx context.Context, projectID string, s model.Schema) error {
	return putItem(ctx, r, projectPK(projectID), skSchema(projectID), "", s)
}

func (r *Repository) SchemaRemove(ctx context.Context, projectID string) error {
	return deleteItem(ctx, r, projectPK(projectID), skSchema(projectID))
}

// --- Entities ---

func (r *Repository) EntitiesLoad(ctx context.Context, projectID string) ([]model.Entity, error) {
	items, err := r.queryPrefix(ctx, projectPK(projectID), skEntityPrefix(projectID))
	if err != nil {
		return nil, err
	}
	out := make([]model.Entity, 0, len(items))
	for _, it := range items {
		var e model.Entity
		if err := json.Unmarshal([]byte(it.Body), &e); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "decode entity", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Repository) EntitiesSave(ctx context.Context, projectID string, entities []model.Entity) error {
	pk := projectPK(projectID)
	for _, e := range entities {
		if err := putItem(ctx, r, pk, skEntity(projectID, e.Uid.String()), gsi1EntityType(projectID), e); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) EntitiesRemove(ctx context.Context, projectID string, uids []model.EntityUid) error {
	pk := projectPK(projectID)
	keys := make([]map[string]ddbtypes.AttributeValue, len(uids))
	for i, u := range uids {
		keys[i] = map[string]ddbtypes.AttributeValue{
			attrPK: &ddbtypes.AttributeValueMemberS{Value: pk},
			attrSK: &ddbtypes.AttributeValueMemberS{Value: skEntity(projectID, u.String())},
		}
	}
	return r.batchDelete(ctx, keys)
}

// --- Policies / Templates / TemplateLinks ---

func (r *Repository) PoliciesLoad(ctx context.Context, projectID string) (map[string]model.Policy, error) {
	return loadMap[model.Policy](ctx, r, projectID, skPolicyPrefix(projectID))
}

func (r *Repository) PoliciesSave(ctx context.Context, projectID string, policies map[string]model.Policy) error {
	for id, p := range policies {
		if err := putItem(ctx, r, projectPK(projectID), skPolicy(projectID, id), "", p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) PoliciesRemove(ctx context.Context, projectID string, ids []string) error {
	return r.removeByIDs(ctx, projectID, ids, func(id string) string { return skPolicy(projectID, id) })
}

func (r *Repository) TemplatesLoad(ctx context.Context, projectID string) (map[string]model.Template, error) {
	return loadMap[model.Template](ctx, r, projectID, skTemplatePrefix(projectID))
}

func (r *Repository) TemplatesSave(ctx context.Context, projectID string, templates map[string]model.Template) error {
	for id, t := range templates {
		if err := putItem(ctx, r, projectPK(projectID), skTemplate(projectID, id), "", t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) TemplatesRemove(ctx context.Context, projectID string, ids []string) error {
	return r.removeByIDs(ctx, projectID, ids, func(id string) string { return skTemplate(projectID, id) })
}

func (r *Repository) TemplateLinksLoad(ctx context.Context, projectID string) ([]model.TemplateLink, error) {
	items, err := r.queryPrefix(ctx, projectPK(projectID), skTemplateLinkPrefix(projectID))
	if err != nil {
		return nil, err
	}
	out := make([]model.TemplateLink, 0, len(items))
	for _, it := range items {
		var l model.TemplateLink
		if err := json.Unmarshal([]byte(it.Body), &l); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "decode template link", err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *Repository) TemplateLinksSave(ctx context.Context, projectID string, links []model.TemplateLink) error {
	for _, l := range links {
		if err := putItem(ctx, r, projectPK(projectID), skTemplateLink(projectID, l.NewID), "", l); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) TemplateLinksRemove(ctx context.Context, projectID string, newIDs []string) error {
	return r.removeByIDs(ctx, projectID, newIDs, func(id string) string { return skTemplateLink(projectID, id) })
}

func loadMap[T any](ctx context.Context, r *Repository, projectID, prefix string) (map[string]T, error) {
	items, err := r.queryPrefix(ctx, projectPK(projectID), prefix)
	if err != nil {
		return nil, err
	}
	out := map[string]T{}
	for _, it := range items {
		id := it.SK[len(prefix):]
		var v T
		if err := json.Unmarshal([]byte(it.Body), &v); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "decode item", err)
		}
		out[id] = v
	}
	return out, nil
}

func (r *Repository) removeByIDs(ctx context.Context, projectID string, ids []string, sk func(string) string) error {
	pk := projectPK(projectID)
	keys := make([]map[string]ddbtypes.AttributeValue, len(ids))
	for i, id := range ids {
		keys[i] = map[string]ddbtypes.AttributeValue{
			attrPK: &ddbtypes.AttributeValueMemberS{Value: pk},
			attrSK: &ddbtypes.AttributeValueMemberS{Value: sk(id)},
		}
	}
	return r.batchDelete(ctx, keys)
}
