package http

var ParseSlashCommand = parseSlashCommand
