package models

type User struct {
	BaseModel
	Email        string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"type:text;not null"`
	Name         string `json:"name" gorm:"type:varchar(150);not null"`

	Directories []Directory `json:"-" gorm:"foreignKey:OwnerID"`
	Files       []FileEntry `json:"-" gorm:"foreignKey:OwnerID"`
}
