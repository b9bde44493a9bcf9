package cli

var PrintActions = printActions
