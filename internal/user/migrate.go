package user

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate applies the users schema using Gorm's AutoMigrate.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": "user.migrate"}
	if logger != nil {
		logger.WithFields(logFields).Info("applying user schema")
	}

	if err := db.WithContext(ctx).AutoMigrate(&User{}); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error("user schema migration failed")
		}
		return eris.Wrap(err, "auto migrating user schema")
	}

	if logger != nil {
		logger.WithFields(logFields).Info("user schema migration complete")
	}

	return nil
}
