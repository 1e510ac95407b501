package patient_mappings

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PatientMappingMongoRepository struct {
	Collection *mongo.Collection
}

func NewPatientMappingMongoRepository(db *mongo.Client, dbName string) *PatientMappingMongoRepository {
	return &PatientMappingMongoRepository{
		Collection: db.Database(dbName).Collection(constvars.MongoCollectionPatientMappings),
	}
}

var _ contracts.PatientMappingRepository = (*PatientMappingMongoRepository)(nil)

// EnsureIndexes creates the unique (tenantId, sourcePatientId) index that
// makes InsertMapping first-writer-wins.
func (repo *PatientMappingMongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := repo.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tenantId", Value: 1},
			{Key: "sourcePatientId", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("uniq_tenant_source_patient"),
	})
	if err != nil {
		return exceptions.ErrMongoDBCreateIndex(err)
	}
	return nil
}

func (repo *PatientMappingMongoRepository) FindMapping(ctx context.Context, tenantID, sourcePatientID string) (*models.PatientMapping, error) {
	var mapping models.PatientMapping
	filter := bson.M{"tenantId": tenantID, "sourcePatientId": sourcePatientID}
	err := repo.Collection.FindOne(ctx, filter).Decode(&mapping)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, exceptions.ErrMongoDBFindDocument(err)
	}
	return &mapping, nil
}

func (repo *PatientMappingMongoRepository) InsertMapping(ctx context.Context, mapping *models.PatientMapping) error {
	_, err := repo.Collection.InsertOne(ctx, mapping)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return exceptions.ErrPatientMappingConflict
		}
		return exceptions.ErrMongoDBInsertDocument(err)
	}
	return nil
}
