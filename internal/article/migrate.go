package article

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate applies the category and article schema using Gorm's AutoMigrate.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": "article.migrate"}
	if logger != nil {
		logger.WithFields(logFields).Info("applying article schema")
	}

	if err := db.WithContext(ctx).AutoMigrate(&Category{}, &Record{}); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error("article schema migration failed")
		}
		return eris.Wrap(err, "auto migrating article schema")
	}

	if logger != nil {
		logger.WithFields(logFields).Info("article schema migration complete")
	}

	return nil
}
