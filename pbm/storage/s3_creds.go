package storage

import "github.com/aws/aws-sdk-go/aws/credentials"

func credentialsStatic(accessKeyID, secretKey string) *credentials.Credentials {
	return credentials.NewStaticCredentials(accessKeyID, secretKey, "")
}
