package graph

import (
	"context"

	"github.com/zabob/memgraph/internal/storage"
	"github.com/zabob/memgraph/internal/types"
)

// CreateEntitiesResult reports skip-and-report semantics: name collisions
// are skipped (never updated) and listed; the call as a whole succeeds.
type CreateEntitiesResult struct {
	Created int      `json:"created"`
	Skipped []string `json:"skipped"`
}

// CreateEntities creates each entity with its observations in the given
// order, all in one transaction.
func (s *Service) CreateEntities(ctx context.Context, entities []types.NewEntity) (*CreateEntitiesResult, error) {
	for _, e := range entities {
		if e.Name == "" {
			return nil, types.InvalidError("name", "entity name must be non-empty")
		}
		if e.EntityType == "" {
			return nil, types.InvalidError("entity_type", "entity type must be non-empty")
		}
		for _, o := range e.Observations {
			if o == "" {
				return nil, types.InvalidError("observations", "observation content must be non-empty")
			}
		}
	}

	result := &CreateEntitiesResult{Skipped: []string{}}
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		names := make([]string, len(entities))
		for i, e := range entities {
			names[i] = e.Name
		}
		existing, err := tx.ResolveNames(ctx, names)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, e := range entities {
			if _, taken := existing[e.Name]; taken || seen[e.Name] {
				result.Skipped = append(result.Skipped, e.Name)
				continue
			}
			seen[e.Name] = true
			if _, err := tx.CreateEntity(ctx, e.Name, e.EntityType); err != nil {
				return err
			}
			for _, o := range e.Observations {
				if _, err := tx.AddObservation(ctx, e.Name, o); err != nil {
					return err
				}
			}
			result.Created++
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError("create_entities", err)
	}
	s.checkpoint(ctx)
	return result, nil
}

// CreateRelationsResult counts new rows; identical existing triples are
// no-ops, not errors.
type CreateRelationsResult struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
}

// CreateRelations creates edges between existing entities. externalRefs is
// required: it must cover every endpoint name used, and every declared
// name must resolve — otherwise the whole call fails before any write.
// This tool never creates entities; that is create_subgraph's job.
func (s *Service) CreateRelations(ctx context.Context, relations []types.NewRelation, externalRefs []string) (*CreateRelationsResult, error) {
	used := make([]string, 0, len(relations)*2)
	for _, r := range relations {
		if r.RelationType == "" {
			return nil, types.InvalidError("relation_type", "relation type must be non-empty")
		}
		if r.From == "" || r.To == "" {
			return nil, types.InvalidError("from/to", "relation endpoints must be non-empty")
		}
		used = append(used, r.From, r.To)
	}
	if err := s.validateExternalRefs(ctx, s.store.ResolveNames, used, externalRefs); err != nil {
		return nil, s.mapError("create_relations", err)
	}

	result := &CreateRelationsResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		// Re-validate inside the transaction: an entity could have been
		// deleted between the pre-check and the write lock.
		if err := s.validateExternalRefs(ctx, tx.ResolveNames, used, externalRefs); err != nil {
			return err
		}
		seen := map[types.NewRelation]bool{}
		for _, r := range relations {
			if seen[r] {
				result.Duplicates++
				continue
			}
			seen[r] = true
			_, created, err := tx.CreateRelation(ctx, r.From, r.To, r.RelationType)
			if err != nil {
				return err
			}
			if created {
				result.Created++
			} else {
				result.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError("create_relations", err)
	}
	s.checkpoint(ctx)
	return result, nil
}

// AddObservationsResult counts appended observations.
type AddObservationsResult struct {
	Added int `json:"added"`
}

// AddObservations appends observations to one entity, in order.
// externalRefs must include the entity name and is validated like
// create_relations.
func (s *Service) AddObservations(ctx context.Context, entityName string, observations []string, externalRefs []string) (*AddObservationsResult, error) {
	if entityName == "" {
		return nil, types.InvalidError("entity_name", "entity name must be non-empty")
	}
	for _, o := range observations {
		if o == "" {
			return nil, types.InvalidError("observations", "observation content must be non-empty")
		}
	}
	if err := s.validateExternalRefs(ctx, s.store.ResolveNames, []string{entityName}, externalRefs); err != nil {
		return nil, s.mapError("add_observations", err)
	}

	result := &AddObservationsResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := s.validateExternalRefs(ctx, tx.ResolveNames, []string{entityName}, externalRefs); err != nil {
			return err
		}
		for _, o := range observations {
			if _, err := tx.AddObservation(ctx, entityName, o); err != nil {
				return err
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError("add_observations", err)
	}
	s.checkpoint(ctx)
	return result, nil
}

// CreateSubgraphResult reports the three phases of the atomic convenience
// operation.
type CreateSubgraphResult struct {
	EntitiesCreated   int `json:"entities_created"`
	RelationsCreated  int `json:"relations_created"`
	ObservationsAdded int `json:"observations_added"`
}

// CreateSubgraph atomically creates entities, then relations (whose
// endpoints may be newly created or pre-existing), then appends
// observations to pre-existing entities. Any failure rolls back the whole
// call. This is the only primitive that combines entity creation with
// relation creation.
func (s *Service) CreateSubgraph(ctx context.Context, entities []types.NewEntity, relations []types.NewRelation, observationsForExisting []types.EntityObservations) (*CreateSubgraphResult, error) {
	for _, e := range entities {
		if e.Name == "" {
			return nil, types.InvalidError("name", "entity name must be non-empty")
		}
		if e.EntityType == "" {
			return nil, types.InvalidError("entity_type", "entity type must be non-empty")
		}
	}
	for _, r := range relations {
		if r.From == "" || r.To == "" || r.RelationType == "" {
			return nil, types.InvalidError("relations", "relation fields must be non-empty")
		}
	}

	result := &CreateSubgraphResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		created := map[string]bool{}
		for _, e := range entities {
			if _, err := tx.CreateEntity(ctx, e.Name, e.EntityType); err != nil {
				return err
			}
			created[e.Name] = true
			result.EntitiesCreated++
			for _, o := range e.Observations {
				if _, err := tx.AddObservation(ctx, e.Name, o); err != nil {
					return err
				}
			}
		}

		// Relation endpoints not created above must already exist.
		var external []string
		for _, r := range relations {
			if !created[r.From] {
				external = append(external, r.From)
			}
			if !created[r.To] {
				external = append(external, r.To)
			}
		}
		for _, eo := range observationsForExisting {
			if created[eo.EntityName] {
				return types.InvalidError("observations_for_existing",
					eo.EntityName+" was created in this call; put its observations on the entity record")
			}
			external = append(external, eo.EntityName)
		}
		if len(external) > 0 {
			external = dedupe(external)
			ids, err := tx.ResolveNames(ctx, external)
			if err != nil {
				return err
			}
			var missing []string
			for _, n := range external {
				if _, ok := ids[n]; !ok {
					missing = append(missing, n)
				}
			}
			if len(missing) > 0 {
				return types.MissingEntitiesError(missing)
			}
		}

		for _, r := range relations {
			_, created, err := tx.CreateRelation(ctx, r.From, r.To, r.RelationType)
			if err != nil {
				return err
			}
			if created {
				result.RelationsCreated++
			}
		}
		for _, eo := range observationsForExisting {
			for _, o := range eo.Observations {
				if _, err := tx.AddObservation(ctx, eo.EntityName, o); err != nil {
					return err
				}
				result.ObservationsAdded++
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError("create_subgraph", err)
	}
	s.checkpoint(ctx)
	return result, nil
}

// DeleteResult counts removed records for the idempotent delete tools.
type DeleteResult struct {
	Deleted int `json:"deleted"`
}

// DeleteEntities removes the named entities; observations, relations and
// embeddings cascade. Missing names are counted as zero, never errors.
func (s *Service) DeleteEntities(ctx context.Context, names []string) (*DeleteResult, error) {
	result := &DeleteResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		for _, n := range dedupe(names) {
			ok, err := tx.DeleteEntity(ctx, n)
			if err != nil {
				return err
			}
			if ok {
				result.Deleted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError("delete_entities", err)
	}
	s.checkpoint(ctx)
	return result, nil
}

// DeleteRelations removes the given triples. Idempotent.
func (s *Service) DeleteRelations(ctx context.Context, relations []types.NewRelation) (*DeleteResult, error) {
	result := &DeleteResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		for _, r := range relations {
			ok, err := tx.DeleteRelation(ctx, r.From, r.To, r.RelationType)
			if err != nil {
				return err
			}
			if ok {
				result.Deleted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError("delete_relations", err)
	}
	s.checkpoint(ctx)
	return result, nil
}
