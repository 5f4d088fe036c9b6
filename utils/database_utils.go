// database_utils should be the canonical place to put shared DB utils.
// It should not include:
// 1. Any util that doesn't manipulate DB
// 2. Any util that contains business logic
package utils

import (
	"fmt"
	"os"

	"github.com/strandapp/strand/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GetDBConnection get a connection to the database specified by env
func GetDBConnection() (*gorm.DB, error) {
	return GetCustomizedConnection(os.Getenv("DB_NAME"))
}

// GetCustomizedConnection connect to any db
func GetCustomizedConnection(dbName string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_PASS"), dbName, os.Getenv("DB_PORT"))
	return getDB(dsn)
}

func getDB(connectionString string) (db *gorm.DB, err error) {
	return gorm.Open(postgres.Open(connectionString), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// DatabaseSetupAndMigration wires the explicit join tables and migrates the
// full schema. Must be called once on startup before any query.
func DatabaseSetupAndMigration(db *gorm.DB) {
	var err error

	err = db.SetupJoinTable(&model.User{}, "Following", &model.UserFollowing{})
	if err != nil {
		panic("failed to setup user_followings join table")
	}

	err = db.SetupJoinTable(&model.Chat{}, "Members", &model.ChatMember{})
	if err != nil {
		panic("failed to setup chat_members join table")
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.Chat{},
		&model.Message{},
		&model.MessageReceipt{},
		&model.Story{},
		&model.StoryView{},
		&model.Post{},
		&model.Media{},
		&model.PostLike{},
		&model.PostComment{},
		&model.PostMute{},
	)
	if err != nil {
		panic("failed to migrate database schema")
	}
}
