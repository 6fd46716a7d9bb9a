package main

// config is the configuration for the program.
type config struct {
	// CosmosEndpoint is the URL of the Cosmos DB account
	CosmosEndpoint string `env:"COSMOS_ENDPOINT,required,notEmpty"`

	// CosmosKey is the account key used to authenticate with Cosmos DB
	CosmosKey string `env:"COSMOS_KEY,required,notEmpty"`

	// CosmosDatabase is the database to seed
	CosmosDatabase string `env:"COSMOS_DATABASE,required,notEmpty"`

	// CosmosContainer is the container to seed
	CosmosContainer string `env:"COSMOS_CONTAINER,required,notEmpty"`

	// Count is the number of records to generate
	Count int `env:"SEED_COUNT" envDefault:"1000"`

	// MaxAgeDays is the maximum age of a generated record
	MaxAgeDays int `env:"SEED_MAX_AGE_DAYS" envDefault:"365"`
}
