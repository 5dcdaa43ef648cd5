package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/aileks/realm-sync/internal/models"
)

// Neo4jConfig holds connection settings for Neo4jProjector.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Cypher statements. Entities and facts are keyed by their record ids.
const (
	cypherUpsertEntity = `MERGE (e:Entity {id: $id})
SET e.projectId = $projectId, e.name = $name, e.type = $type, e.aliases = $aliases`

	cypherDeleteEntity = `MATCH (e:Entity {id: $id})
OPTIONAL MATCH (e)-[:HAS_FACT]->(f:Fact)
DETACH DELETE e, f`

	cypherMoveFacts = `MATCH (s:Entity {id: $sourceId})-[r:HAS_FACT]->(f:Fact)
MATCH (t:Entity {id: $targetId})
MERGE (t)-[:HAS_FACT]->(f)
DELETE r`

	cypherDeleteSource = `MATCH (s:Entity {id: $sourceId})
OPTIONAL MATCH (s)-[:HAS_FACT]->(f:Fact)
DETACH DELETE s, f`

	cypherUpsertFact = `MATCH (e:Entity {id: $entityId})
MERGE (f:Fact {id: $id})
SET f.projectId = $projectId, f.subject = $subject, f.predicate = $predicate,
    f.object = $object, f.confidence = $confidence
MERGE (e)-[:HAS_FACT]->(f)`

	cypherDeleteFact = `MATCH (f:Fact {id: $id}) DETACH DELETE f`

	cypherDeleteProject = `MATCH (n) WHERE (n:Entity OR n:Fact) AND n.projectId = $projectId
DETACH DELETE n`
)

// runFunc executes one write statement.
type runFunc func(ctx context.Context, cypher string, params map[string]any) error

// Neo4jProjector writes the canon graph to Neo4j.
type Neo4jProjector struct {
	driver neo4j.DriverWithContext
	run    runFunc
}

// NewNeo4jProjector connects to Neo4j and verifies connectivity.
func NewNeo4jProjector(ctx context.Context, cfg Neo4jConfig) (*Neo4jProjector, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	p := &Neo4jProjector{driver: driver}
	p.run = func(ctx context.Context, cypher string, params map[string]any) error {
		opts := []neo4j.ExecuteQueryConfigurationOption{}
		if cfg.Database != "" {
			opts = append(opts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
		}
		_, err := neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer, opts...)
		return err
	}
	return p, nil
}

// Close releases the driver.
func (p *Neo4jProjector) Close(ctx context.Context) error {
	if p.driver == nil {
		return nil
	}
	return p.driver.Close(ctx)
}

func (p *Neo4jProjector) UpsertEntity(ctx context.Context, e models.Entity) error {
	aliases := e.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	return p.exec(ctx, "upsert entity", cypherUpsertEntity, map[string]any{
		"id":        e.ID,
		"projectId": e.ProjectID,
		"name":      e.Name,
		"type":      string(e.Type),
		"aliases":   aliases,
	})
}

func (p *Neo4jProjector) DeleteEntity(ctx context.Context, entityID string) error {
	return p.exec(ctx, "delete entity", cypherDeleteEntity, map[string]any{"id": entityID})
}

func (p *Neo4jProjector) MergeEntities(ctx context.Context, sourceID, targetID string) error {
	params := map[string]any{"sourceId": sourceID, "targetId": targetID}
	if err := p.exec(ctx, "move facts", cypherMoveFacts, params); err != nil {
		return err
	}
	return p.exec(ctx, "delete merged entity", cypherDeleteSource, map[string]any{"sourceId": sourceID})
}

func (p *Neo4jProjector) UpsertFact(ctx context.Context, f models.Fact) error {
	if f.EntityID == "" {
		return nil
	}
	return p.exec(ctx, "upsert fact", cypherUpsertFact, map[string]any{
		"id":         f.ID,
		"entityId":   f.EntityID,
		"projectId":  f.ProjectID,
		"subject":    f.Subject,
		"predicate":  f.Predicate,
		"object":     f.Object,
		"confidence": f.Confidence,
	})
}

func (p *Neo4jProjector) DeleteFact(ctx context.Context, factID string) error {
	return p.exec(ctx, "delete fact", cypherDeleteFact, map[string]any{"id": factID})
}

func (p *Neo4jProjector) DeleteProject(ctx context.Context, projectID string) error {
	return p.exec(ctx, "delete project", cypherDeleteProject, map[string]any{"projectId": projectID})
}

func (p *Neo4jProjector) exec(ctx context.Context, op, cypher string, params map[string]any) error {
	if err := p.run(ctx, cypher, params); err != nil {
		return fmt.Errorf("neo4j %s: %w", op, err)
	}
	return nil
}

var _ Projector = (*Neo4jProjector)(nil)
