package authz

import (
	"context"
	"errors"
	"io"
	"time"

	v1 "github.com/authzed/authzed-go/proto/authzed/api/v1"
	"github.com/authzed/authzed-go/v1"
	"github.com/authzed/grpcutil"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	kerrors "kartograph-backend/internal/errors"
)

// SpiceDBConfig configures the SpiceDB adapter.
type SpiceDBConfig struct {
	Endpoint    string
	Token       string
	Insecure    bool
	CallTimeout time.Duration
}

// SpiceDBEngine implements PolicyEngine against SpiceDB. Every call is
// bounded by CallTimeout and routed through a circuit breaker so a
// misbehaving policy engine trips fast instead of stalling the worker's
// claim transaction.
type SpiceDBEngine struct {
	client  *authzed.Client
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

// NewSpiceDBEngine dials SpiceDB and wraps it in a circuit breaker.
func NewSpiceDBEngine(cfg SpiceDBConfig, logger *zap.Logger) (*SpiceDBEngine, error) {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.Insecure {
		opts = append(opts,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpcutil.WithInsecureBearerToken(cfg.Token),
		)
	} else {
		certs, err := grpcutil.WithSystemCerts(grpcutil.VerifyCA)
		if err != nil {
			return nil, kerrors.Internal("failed to load system certificates", err)
		}
		opts = append(opts, certs, grpcutil.WithBearerToken(cfg.Token))
	}

	client, err := authzed.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, kerrors.PolicyEngine("dial", err)
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "spicedb",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("policy engine circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &SpiceDBEngine{
		client:  client,
		breaker: breaker,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// call runs fn under the breaker with the per-call timeout applied.
func (e *SpiceDBEngine) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := e.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return nil, fn(callCtx)
	})
	if err != nil {
		return kerrors.PolicyEngine(op, err)
	}
	return nil
}

// WriteRelationships upserts tuples with TOUCH semantics (idempotent).
func (e *SpiceDBEngine) WriteRelationships(ctx context.Context, tuples []Relationship) error {
	if len(tuples) == 0 {
		return nil
	}
	updates := make([]*v1.RelationshipUpdate, len(tuples))
	for i, t := range tuples {
		updates[i] = &v1.RelationshipUpdate{
			Operation:    v1.RelationshipUpdate_OPERATION_TOUCH,
			Relationship: toRelationship(t),
		}
	}
	return e.call(ctx, "write_relationships", func(ctx context.Context) error {
		_, err := e.client.WriteRelationships(ctx, &v1.WriteRelationshipsRequest{Updates: updates})
		return err
	})
}

// DeleteRelationships removes tuples. DELETE of an absent tuple succeeds.
func (e *SpiceDBEngine) DeleteRelationships(ctx context.Context, tuples []Relationship) error {
	if len(tuples) == 0 {
		return nil
	}
	updates := make([]*v1.RelationshipUpdate, len(tuples))
	for i, t := range tuples {
		updates[i] = &v1.RelationshipUpdate{
			Operation:    v1.RelationshipUpdate_OPERATION_DELETE,
			Relationship: toRelationship(t),
		}
	}
	return e.call(ctx, "delete_relationships", func(ctx context.Context) error {
		_, err := e.client.WriteRelationships(ctx, &v1.WriteRelationshipsRequest{Updates: updates})
		return err
	})
}

// DeleteRelationshipsByFilter removes every tuple matching the filter.
func (e *SpiceDBEngine) DeleteRelationshipsByFilter(ctx context.Context, filter RelationshipFilter) error {
	return e.call(ctx, "delete_relationships_by_filter", func(ctx context.Context) error {
		_, err := e.client.DeleteRelationships(ctx, &v1.DeleteRelationshipsRequest{
			RelationshipFilter: toFilter(filter),
		})
		return err
	})
}

// CheckPermission reports whether subject holds permission on resource.
func (e *SpiceDBEngine) CheckPermission(ctx context.Context, resource ObjectRef, permission string, subject SubjectRef) (bool, error) {
	var allowed bool
	err := e.call(ctx, "check_permission", func(ctx context.Context) error {
		resp, err := e.client.CheckPermission(ctx, &v1.CheckPermissionRequest{
			Resource:   &v1.ObjectReference{ObjectType: resource.Type, ObjectId: resource.ID},
			Permission: permission,
			Subject:    toSubject(subject),
		})
		if err != nil {
			return err
		}
		allowed = resp.Permissionship == v1.CheckPermissionResponse_PERMISSIONSHIP_HAS_PERMISSION
		return nil
	})
	return allowed, err
}

// LookupResources streams the resource ids the subject can reach.
func (e *SpiceDBEngine) LookupResources(ctx context.Context, resourceType, permission string, subject SubjectRef) ([]string, error) {
	var ids []string
	err := e.call(ctx, "lookup_resources", func(ctx context.Context) error {
		stream, err := e.client.LookupResources(ctx, &v1.LookupResourcesRequest{
			ResourceObjectType: resourceType,
			Permission:         permission,
			Subject:            toSubject(subject),
		})
		if err != nil {
			return err
		}
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			ids = append(ids, resp.ResourceObjectId)
		}
	})
	return ids, err
}

// LookupSubjects streams the subject ids holding permission on resource.
func (e *SpiceDBEngine) LookupSubjects(ctx context.Context, resource ObjectRef, permission, subjectType string) ([]string, error) {
	var ids []string
	err := e.call(ctx, "lookup_subjects", func(ctx context.Context) error {
		stream, err := e.client.LookupSubjects(ctx, &v1.LookupSubjectsRequest{
			Resource:          &v1.ObjectReference{ObjectType: resource.Type, ObjectId: resource.ID},
			Permission:        permission,
			SubjectObjectType: subjectType,
		})
		if err != nil {
			return err
		}
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			ids = append(ids, resp.Subject.SubjectObjectId)
		}
	})
	return ids, err
}

// ReadRelationships streams the tuples matching the filter.
func (e *SpiceDBEngine) ReadRelationships(ctx context.Context, filter RelationshipFilter) ([]Relationship, error) {
	var tuples []Relationship
	err := e.call(ctx, "read_relationships", func(ctx context.Context) error {
		stream, err := e.client.ReadRelationships(ctx, &v1.ReadRelationshipsRequest{
			RelationshipFilter: toFilter(filter),
		})
		if err != nil {
			return err
		}
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			tuples = append(tuples, fromRelationship(resp.Relationship))
		}
	})
	return tuples, err
}

func toRelationship(t Relationship) *v1.Relationship {
	return &v1.Relationship{
		Resource: &v1.ObjectReference{ObjectType: t.Resource.Type, ObjectId: t.Resource.ID},
		Relation: t.Relation,
		Subject:  toSubject(t.Subject),
	}
}

func fromRelationship(rel *v1.Relationship) Relationship {
	return Relationship{
		Resource: ObjectRef{Type: rel.Resource.ObjectType, ID: rel.Resource.ObjectId},
		Relation: rel.Relation,
		Subject: SubjectRef{
			Type:     rel.Subject.Object.ObjectType,
			ID:       rel.Subject.Object.ObjectId,
			Relation: rel.Subject.OptionalRelation,
		},
	}
}

func toSubject(s SubjectRef) *v1.SubjectReference {
	return &v1.SubjectReference{
		Object:           &v1.ObjectReference{ObjectType: s.Type, ObjectId: s.ID},
		OptionalRelation: s.Relation,
	}
}

func toFilter(f RelationshipFilter) *v1.RelationshipFilter {
	filter := &v1.RelationshipFilter{
		ResourceType:       f.ResourceType,
		OptionalResourceId: f.ResourceID,
		OptionalRelation:   f.Relation,
	}
	if f.SubjectType != "" || f.SubjectID != "" {
		filter.OptionalSubjectFilter = &v1.SubjectFilter{
			SubjectType:       f.SubjectType,
			OptionalSubjectId: f.SubjectID,
		}
	}
	return filter
}
